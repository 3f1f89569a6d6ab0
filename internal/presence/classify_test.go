package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  MergeResult
		want []EventType
	}{
		{
			name: "repeat sighting",
			res:  MergeResult{},
			want: []EventType{EventDiscovered},
		},
		{
			name: "new device",
			res:  MergeResult{IsNew: true},
			want: []EventType{EventDiscovered, EventNewDiscovery},
		},
		{
			name: "name change",
			res:  MergeResult{NameChanged: true},
			want: []EventType{EventDiscovered, EventNameChanged},
		},
		{
			name: "data change",
			res:  MergeResult{DataChanged: true},
			want: []EventType{EventDiscovered, EventDataChanged},
		},
		{
			name: "data before name",
			res:  MergeResult{NameChanged: true, DataChanged: true},
			want: []EventType{EventDiscovered, EventDataChanged, EventNameChanged},
		},
		{
			name: "all flags keep fixed order",
			res:  MergeResult{IsNew: true, NameChanged: true, DataChanged: true},
			want: []EventType{EventDiscovered, EventDataChanged, EventNameChanged, EventNewDiscovery},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.res))
		})
	}
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "new_discovery", EventNewDiscovery.String())
	assert.Equal(t, "timed_out", EventTimedOut.String())
	assert.Equal(t, "unknown", EventType(0).String())
}
