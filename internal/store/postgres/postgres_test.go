package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inspectdoc/internal/store/storetest"
)

func TestStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	prefix := "test_" + uuid.NewString()[:8] + "_"
	s, err := Connect(ctx, url, prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DropTable(ctx)
		s.Close()
	})

	storetest.Run(t, s)
}
