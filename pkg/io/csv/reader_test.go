package csv

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		opts        []Option
		want        [][]float64
		wantHeaders []string
		wantErr     bool
		wantSkipped int
	}{
		{
			name:        "header and rows",
			input:       "a,b\n0.5,-1\n2, 3e2\n",
			want:        [][]float64{{0.5, -1}, {2, 300}},
			wantHeaders: []string{"a", "b"},
		},
		{
			name:  "no header",
			input: "1,2\n3,4\n",
			opts:  []Option{WithHeader(false)},
			want:  [][]float64{{1, 2}, {3, 4}},
		},
		{
			name:    "malformed row fails",
			input:   "a,b\n1,2\nx,4\n",
			wantErr: true,
		},
		{
			name:        "malformed row skipped",
			input:       "a,b\n1,2\nx,4\n5,6\n",
			opts:        []Option{WithSkipInvalid(true)},
			want:        [][]float64{{1, 2}, {5, 6}},
			wantHeaders: []string{"a", "b"},
			wantSkipped: 1,
		},
		{
			name:        "ragged rows pass through",
			input:       "a,b\n1,2\n3,4,5\n",
			want:        [][]float64{{1, 2}, {3, 4, 5}},
			wantHeaders: []string{"a", "b"},
		},
		{
			name:  "empty input",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReaderFrom(strings.NewReader(tt.input), tt.opts...)
			require.NoError(t, err)

			got, err := r.Read()
			if tt.wantErr {
				require.Error(t, err)
				var rowErr *RowError
				require.ErrorAs(t, err, &rowErr)
				assert.Equal(t, 3, rowErr.Line)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantHeaders, r.Headers())
			assert.Equal(t, tt.wantSkipped, r.Skipped())
		})
	}
}

func TestNewReaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features_preprocessed.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y\n0,0\n0.1,0\n"), 0o600))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	data, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {0.1, 0}}, data)

	_, err = NewReader(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	var b strings.Builder
	b.WriteString("v\n")
	for i := 0; i < 250; i++ {
		b.WriteString(strconv.Itoa(i))
		b.WriteString("\n")
	}
	b.WriteString("bad\n")

	r, err := NewReaderFrom(strings.NewReader(b.String()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := r.Stream(ctx)
	require.NoError(t, err)

	var rows [][]float64
	for row := range ch {
		rows = append(rows, row)
	}
	require.Len(t, rows, 250)
	assert.Equal(t, []float64{249}, rows[249])
	assert.Equal(t, 1, r.Skipped())
}

func TestStreamCancel(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("1,2\n")
	}
	r, err := NewReaderFrom(strings.NewReader(b.String()), WithHeader(false))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := r.Stream(ctx)
	require.NoError(t, err)

	<-ch
	cancel()
	for range ch {
	}
}
