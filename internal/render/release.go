package render

// releaseStack collects destroy calls and runs them in reverse order of
// registration.
type releaseStack struct {
	fns []func()
}

func (s *releaseStack) push(fn func()) {
	s.fns = append(s.fns, fn)
}

func (s *releaseStack) release() {
	for i := len(s.fns) - 1; i >= 0; i-- {
		s.fns[i]()
	}
	s.fns = nil
}

func (s *releaseStack) len() int { return len(s.fns) }
