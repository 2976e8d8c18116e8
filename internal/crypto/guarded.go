package crypto

// GuardedKey holds key material pinned out of swap where the platform
// supports it. Zeroed and unpinned by Destroy; a destroyed key reads as nil.
type GuardedKey struct {
	buf    []byte
	locked bool
}

func NewGuardedKey(material []byte) *GuardedKey {
	buf := make([]byte, len(material))
	copy(buf, material)
	g := &GuardedKey{buf: buf}
	if err := lockMemory(buf); err == nil {
		g.locked = true
	}
	return g
}

func (g *GuardedKey) Bytes() []byte {
	if g == nil || g.buf == nil {
		return nil
	}
	return g.buf
}

func (g *GuardedKey) Destroy() {
	if g == nil || g.buf == nil {
		return
	}
	Zero(g.buf)
	if g.locked {
		_ = unlockMemory(g.buf)
		g.locked = false
	}
	g.buf = nil
}
