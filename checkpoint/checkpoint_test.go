package checkpoint

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileSaver writes the files a V2 saver produces and records restores.
type fileSaver struct {
	fs       afero.Fs
	saved    []string
	restored []string
	fail     error
}

func (s *fileSaver) Save(prefix string) error {
	if s.fail != nil {
		return s.fail
	}
	s.saved = append(s.saved, prefix)
	for _, suffix := range []string{".index", ".data-00000-of-00001"} {
		if err := afero.WriteFile(s.fs, prefix+suffix, []byte("v"), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileSaver) Restore(prefix string) error {
	s.restored = append(s.restored, prefix)
	return nil
}

func TestRestoreRequiresSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	saver := &fileSaver{fs: fs}
	m := New(fs, saver, "/ckpt", "s2v-rnn")

	_, _, err := m.Restore()
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, saver.restored)

	require.NoError(t, fs.MkdirAll("/ckpt", 0755))
	_, _, err = m.Restore()
	assert.True(t, errors.Is(err, ErrNotFound))

	for _, it := range []int{5, 10, 15} {
		prefix, err := m.Save(it)
		require.NoError(t, err)
		assert.Equal(t, m.Prefix(it), prefix)
	}

	prefix, it, err := m.Restore()
	require.NoError(t, err)
	assert.Equal(t, "/ckpt/s2v-rnn-15", prefix)
	assert.Equal(t, 15, it)
	assert.Equal(t, []string{"/ckpt/s2v-rnn-15"}, saver.restored)
}

func TestLatestIsHighestIteration(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, &fileSaver{fs: fs}, "/ckpt", "s2v-arith_mean")

	for _, it := range []int{100, 9, 20} {
		_, err := m.Save(it)
		require.NoError(t, err)
	}
	prefix, it, err := m.Latest()
	require.NoError(t, err)
	assert.Equal(t, 100, it)
	assert.Equal(t, "/ckpt/s2v-arith_mean-100", prefix)

	state, err := afero.ReadFile(fs, "/ckpt/checkpoint")
	require.NoError(t, err)
	assert.Equal(t, `model_checkpoint_path: "s2v-arith_mean-100"
all_model_checkpoint_paths: "s2v-arith_mean-9"
all_model_checkpoint_paths: "s2v-arith_mean-20"
all_model_checkpoint_paths: "s2v-arith_mean-100"
`, string(state))
}

func TestSaveNeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	saver := &fileSaver{fs: fs}
	m := New(fs, saver, "/ckpt", "s2v-rnn")

	_, err := m.Save(3)
	require.NoError(t, err)
	_, err = m.Save(3)
	assert.True(t, errors.Is(err, ErrExists))
	assert.Len(t, saver.saved, 1)
}

func TestOtherModelsIgnored(t *testing.T) {
	fs := afero.NewMemMapFs()
	rnn := New(fs, &fileSaver{fs: fs}, "/ckpt", "s2v-rnn")
	_, err := rnn.Save(50)
	require.NoError(t, err)

	// s2v-rnn-50 must not be taken for an s2v-rnn_x checkpoint or vice versa
	require.NoError(t, afero.WriteFile(fs, "/ckpt/s2v-rnn_x-70.index", nil, 0644))
	_, it, err := rnn.Latest()
	require.NoError(t, err)
	assert.Equal(t, 50, it)

	ann := New(fs, &fileSaver{fs: fs}, "/ckpt", "s2v-annotations")
	_, _, err = ann.Latest()
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStateFileOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ckpt/checkpoint", []byte(`model_checkpoint_path: "s2v-rnn-7"
all_model_checkpoint_paths: "s2v-rnn-7"
`), 0644))
	saver := &fileSaver{fs: fs}
	prefix, _, err := New(fs, saver, "/ckpt", "s2v-rnn").Restore()
	require.NoError(t, err)
	assert.Equal(t, "/ckpt/s2v-rnn-7", prefix)
}

func TestSaveError(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, &fileSaver{fs: fs, fail: errors.New("disk full")}, "/ckpt", "s2v-rnn")
	_, err := m.Save(1)
	require.Error(t, err)

	_, _, err = m.Latest()
	assert.True(t, errors.Is(err, ErrNotFound), "a failed save is not recorded")
}
