// Package manifest verifies a pinned python requirements manifest against
// the packages actually installed in the training environment. The wrapped
// trainer is sensitive to exact library versions (vllm, transformers, torch),
// so a drifted environment should be caught before a run starts, not an hour
// into it.
package manifest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type Op string

const (
	OpExact Op = "=="
	OpMin   Op = ">="
	OpAny   Op = "" // name listed with no version constraint
)

// Requirement is one parsed manifest line.
type Requirement struct {
	Name    string // normalized (PEP 503)
	Raw     string // name as written, extras included
	Op      Op
	Version string
}

// Package is one installed package from `pip list --format=json`.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Normalize folds a package name per PEP 503: lowercase, runs of -_. become -.
func Normalize(name string) string {
	var b strings.Builder
	prevSep := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			if !prevSep {
				b.WriteByte('-')
			}
			prevSep = true
			continue
		}
		prevSep = false
		b.WriteRune(r)
	}
	return b.String()
}

// Parse reads requirement lines. Comments, blank lines and environment
// markers (everything after ';') are ignored; extras are stripped from the
// normalized name but kept in Raw.
func Parse(r io.Reader) ([]Requirement, error) {
	var reqs []Requirement
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		req, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		reqs = append(reqs, req)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func ParseFile(path string) ([]Requirement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest '%s': %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(line string) (Requirement, error) {
	op := OpAny
	name, version := line, ""
	for _, candidate := range []Op{OpExact, OpMin} {
		if i := strings.Index(line, string(candidate)); i >= 0 {
			name = strings.TrimSpace(line[:i])
			version = strings.TrimSpace(line[i+2:])
			op = candidate
			break
		}
	}
	if name == "" {
		return Requirement{}, fmt.Errorf("no package name in %q", line)
	}
	if op != OpAny && version == "" {
		return Requirement{}, fmt.Errorf("missing version in %q", line)
	}

	raw := name
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	return Requirement{Name: Normalize(name), Raw: raw, Op: op, Version: version}, nil
}

// ParseInstalled decodes `pip list --format=json` output.
func ParseInstalled(r io.Reader) (map[string]string, error) {
	var pkgs []Package
	if err := json.NewDecoder(r).Decode(&pkgs); err != nil {
		return nil, fmt.Errorf("failed to parse installed package report: %w", err)
	}
	out := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		out[Normalize(p.Name)] = p.Version
	}
	return out, nil
}

// FromPip shells out to the given python interpreter for the installed set.
func FromPip(ctx context.Context, python string) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, python, "-m", "pip", "list", "--format=json")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pip list failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return ParseInstalled(&stdout)
}

// Problem is one requirement the environment does not satisfy.
type Problem struct {
	Requirement Requirement
	Installed   string // "" when the package is absent
}

func (p Problem) String() string {
	if p.Installed == "" {
		if p.Requirement.Op == OpAny {
			return fmt.Sprintf("%s: not installed", p.Requirement.Raw)
		}
		return fmt.Sprintf("%s: not installed (want %s%s)", p.Requirement.Raw, p.Requirement.Op, p.Requirement.Version)
	}
	return fmt.Sprintf("%s: installed %s, want %s%s", p.Requirement.Raw, p.Installed, p.Requirement.Op, p.Requirement.Version)
}

// Report is the outcome of verifying a manifest against an environment.
type Report struct {
	Satisfied int
	Problems  []Problem
}

func (r Report) OK() bool {
	return len(r.Problems) == 0
}

// Verify checks every requirement and collects all problems.
func Verify(reqs []Requirement, installed map[string]string) Report {
	var rep Report
	for _, req := range reqs {
		have, ok := installed[req.Name]
		if !ok {
			rep.Problems = append(rep.Problems, Problem{Requirement: req})
			continue
		}
		if satisfies(req, have) {
			rep.Satisfied++
		} else {
			rep.Problems = append(rep.Problems, Problem{Requirement: req, Installed: have})
		}
	}
	return rep
}

func satisfies(req Requirement, have string) bool {
	switch req.Op {
	case OpAny:
		return true
	case OpExact:
		return have == req.Version
	case OpMin:
		return compareVersions(have, req.Version) >= 0
	}
	return false
}

// compareVersions compares dotted versions segment by segment, numerically
// where both segments are numbers. Good enough for the pinned ML stack;
// full PEP 440 (rc/post/dev tags) is deliberately out of scope.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if sa != sb {
			return strings.Compare(sa, sb)
		}
	}
	return 0
}
