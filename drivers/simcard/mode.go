package simcard

import (
	"os"
	"strings"
)

// openMode is a parsed fopen mode string.
type openMode struct {
	flag   int // os.O_* flags, without O_APPEND
	read   bool
	write  bool
	append bool
}

// parseMode understands the C modes r, w, a with optional '+', 'b' and a
// trailing 'x' for exclusive creation.
func parseMode(mode string) (openMode, bool) {
	if mode == "" {
		return openMode{}, false
	}

	var m openMode
	switch mode[0] {
	case 'r':
		m.read = true
	case 'w':
		m.write = true
		m.flag = os.O_CREATE | os.O_TRUNC
	case 'a':
		m.write = true
		m.append = true
		m.flag = os.O_CREATE
	default:
		return openMode{}, false
	}

	for _, c := range mode[1:] {
		switch c {
		case '+':
			m.read, m.write = true, true
		case 'b':
		case 'x':
			if mode[0] != 'w' {
				return openMode{}, false
			}
			m.flag |= os.O_EXCL
		default:
			return openMode{}, false
		}
	}
	if strings.Count(mode, "+") > 1 {
		return openMode{}, false
	}

	switch {
	case m.read && m.write:
		m.flag |= os.O_RDWR
	case m.write:
		m.flag |= os.O_WRONLY
	default:
		m.flag |= os.O_RDONLY
	}
	return m, true
}
