//go:build !unix

package platform

func reserve(int) ([]byte, error) {
	return nil, ErrGuardUnsupported
}

func commit([]byte) error {
	return ErrGuardUnsupported
}

func release([]byte) error {
	return ErrGuardUnsupported
}
