package events

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog(t *testing.T) {
	topics := Catalog()
	assert.Len(t, topics, 5)

	names := make([]string, len(topics))
	for i, topic := range topics {
		names[i] = topic.Name
		assert.True(t, strings.HasPrefix(topic.Name, "relay."), topic.Name)
		assert.NotEmpty(t, topic.Publisher)
		assert.NotEmpty(t, topic.Description)
	}
	assert.True(t, sort.StringsAreSorted(names))
}
