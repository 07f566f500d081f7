package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRelay(t *testing.T) {
	before := testutil.ToFloat64(MessagesRelayed.WithLabelValues("cursor-move", "remote"))
	RecordRelay("cursor-move", true)
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesRelayed.WithLabelValues("cursor-move", "remote")))
}

func TestRecordSave(t *testing.T) {
	ok := testutil.ToFloat64(DrawingSaves.WithLabelValues("ok"))
	bad := testutil.ToFloat64(DrawingSaves.WithLabelValues("error"))

	RecordSave(nil)
	RecordSave(errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(DrawingSaves.WithLabelValues("ok")))
	assert.Equal(t, bad+1, testutil.ToFloat64(DrawingSaves.WithLabelValues("error")))
}

func TestRecordDrop(t *testing.T) {
	before := testutil.ToFloat64(MessagesDropped.WithLabelValues(DropViewOnly))
	RecordDrop(DropViewOnly)
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesDropped.WithLabelValues(DropViewOnly)))
}
