package copystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefRoundTrip(t *testing.T) {
	ref := Ref("job-123")
	assert.Equal(t, "copy:job-123", ref)

	jobID, err := JobIDFromRef(ref)
	require.NoError(t, err)
	assert.Equal(t, "job-123", jobID)
}

func TestJobIDFromRef_RejectsForeignRefs(t *testing.T) {
	_, err := JobIDFromRef("s3://bucket/key")
	assert.Error(t, err)

	_, err = JobIDFromRef("")
	assert.Error(t, err)
}
