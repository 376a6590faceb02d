package tokens

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace only", text: " \n\t ", want: 0},
		{name: "two words", text: "hello world", want: 2},
		{name: "single word", text: "hello", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Count(tt.text))
		})
	}
}

func TestCount_GrowsWithInput(t *testing.T) {
	short := Count(`{"skills":["Go"]}`)
	long := Count(`{"skills":["Go","PostgreSQL","Kubernetes","Terraform","gRPC"]}`)
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestCountJSON(t *testing.T) {
	assert.Equal(t, 0, CountJSON(nil))
	assert.Equal(t, Count(`{"a":1}`), CountJSON(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, Count(`{"a":1}`), CountJSON(map[string]int{"a": 1}))
	assert.Equal(t, 0, CountJSON(make(chan int)))
}
