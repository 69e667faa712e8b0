package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	logx "pricebot/pkg/logx"
)

func TestBackendsRoundTrip(t *testing.T) {
	cases := []struct {
		driver string
		file   string
	}{
		{"file", "data.json"},
		{"sqlite", "data.db"},
		{"bolt", "data.bolt"},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{Driver: tc.driver, Path: filepath.Join(t.TempDir(), "nested", tc.file)}

			s, err := Open(ctx, cfg, logx.Nop())
			require.NoError(t, err)
			require.Empty(t, s.ActiveSubscriberIDs())
			s.UpsertSubscriber(ctx, 1, "a", "A", "")
			s.UpsertSubscriber(ctx, 2, "b", "B", "")
			s.DeactivateSubscriber(ctx, 2)
			pid := s.AddPriceList(ctx, "fid", "list.pdf", 1)
			require.NoError(t, s.Close())

			s2, err := Open(ctx, cfg, logx.Nop())
			require.NoError(t, err)
			defer s2.Close()
			require.Equal(t, []int64{1}, s2.ActiveSubscriberIDs())
			p, ok := s2.PriceList(pid)
			require.True(t, ok)
			require.Equal(t, "list.pdf", p.FileName)
		})
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	s, err := Open(context.Background(), Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.Empty(t, s.ActiveSubscriberIDs())
}

func TestFileBackendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := openFile(Config{Path: filepath.Join(dir, "data.json")})
	require.NoError(t, err)
	require.NoError(t, b.Save(context.Background(), []byte(`{}`)))
	require.NoError(t, b.Save(context.Background(), []byte(`{"next_price_id":3}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := b.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, `{"next_price_id":3}`, string(got))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)
}
