package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="report.pdf"`, ContentDisposition("report.pdf", false))
	assert.Equal(t, `inline; filename="cat.png"`, ContentDisposition("cat.png", true))
	assert.Equal(t, `attachment; filename="evil.txtX-Injected: 1"`, ContentDisposition("evil\".txt\r\nX-Injected: 1", false))
}

func TestBatchError(t *testing.T) {
	assert.NoError(t, batchError(nil))

	err := batchError([]types.Error{
		{Key: aws.String("a.txt"), Code: aws.String("AccessDenied"), Message: aws.String("Access Denied")},
		{Key: aws.String("b.txt"), Code: aws.String("InternalError")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete 2 objects")
	assert.Contains(t, err.Error(), "a.txt (AccessDenied)")
	assert.Contains(t, err.Error(), "b.txt (InternalError)")
}
