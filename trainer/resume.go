package trainer

// resume loads the latest checkpoint and returns its iteration.
func (m *Model) resume() (int, error) {
	prefix, it, err := m.ckpt.Restore()
	if err != nil {
		return 0, err
	}
	m.log.Infof("Loading trained model from: %s", prefix)
	return it, nil
}
