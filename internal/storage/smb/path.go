package smb

import (
	"fmt"
	"strings"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
)

// forbidden are characters the command interpreter treats specially.
const forbidden = "\"*?<>|&^%:"

// CleanPath normalises a share-relative path: slashes become backslashes,
// leading and trailing separators are dropped. It rejects parent segments,
// drive colons, wildcards, shell metacharacters and control characters.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "/", `\`))
	p = strings.Trim(p, `\`)
	if p == "" {
		return "", nil
	}
	if err := checkChars(p); err != nil {
		return "", err
	}
	for _, seg := range strings.Split(p, `\`) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the share", ErrInvalidPath, p)
		}
	}
	return p, nil
}

// CleanQuery validates a search term. It may not contain separators.
func CleanQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("%w: empty search query", ErrInvalidPath)
	}
	if strings.ContainsAny(q, `\/`) {
		return "", fmt.Errorf("%w: search query %q contains a separator", ErrInvalidPath, q)
	}
	if err := checkChars(q); err != nil {
		return "", err
	}
	return q, nil
}

// CleanName validates a single file name, as given by an uploader.
func CleanName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || n == "." || n == ".." {
		return "", fmt.Errorf("%w: invalid file name %q", ErrInvalidPath, name)
	}
	if strings.ContainsAny(n, `\/`) {
		return "", fmt.Errorf("%w: file name %q contains a separator", ErrInvalidPath, name)
	}
	if err := checkChars(n); err != nil {
		return "", err
	}
	return n, nil
}

func checkChars(s string) error {
	for _, r := range s {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(forbidden, r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidPath, s, r)
		}
	}
	return nil
}

// Target returns the UNC form of a cleaned share-relative path.
func (c Credentials) Target(rel string) string {
	if rel == "" {
		return c.UNC()
	}
	return c.UNC() + `\` + rel
}

func netUse(c Credentials) remote.Command {
	return remote.Command{
		Program: "net",
		Args:    []string{"use", c.UNC(), c.Password, "/user:" + c.Username},
		Secret:  []int{2},
	}
}

func netUseDelete(c Credentials) remote.Command {
	return remote.Command{Program: "net", Args: []string{"use", c.UNC(), "/delete", "/y"}}
}

func builtin(program string, args ...string) remote.Command {
	return remote.Command{Program: program, Args: args, Builtin: true}
}
