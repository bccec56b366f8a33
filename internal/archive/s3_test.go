package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUploaderReturnsNilWhenDisabled(t *testing.T) {
	u, err := NewUploader(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, u)
}
