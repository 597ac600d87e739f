package recipe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Facts are the runtime-relevant declarations of a container recipe's
// final stage: exposed ports, volume mount paths, and the runtime user.
type Facts struct {
	Ports   []int
	Volumes []string
	User    string
}

// Policy is what the build stage requires of the recipe before an image
// is built from it.
type Policy struct {
	RequirePort    int
	RequireVolume  string
	RequireNonRoot bool
}

// ParseFile reads a Dockerfile and extracts Facts.
func ParseFile(path string) (Facts, error) {
	f, err := os.Open(path)
	if err != nil {
		return Facts{}, err
	}
	defer f.Close()

	var facts Facts
	sc := bufio.NewScanner(f)
	var pending string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// join continuation lines
		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSuffix(line, "\\") + " "
			continue
		}
		line = pending + line
		pending = ""

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "FROM":
			// each build stage starts with a clean slate; only the
			// final stage's declarations describe the runtime image
			facts = Facts{}
		case "EXPOSE":
			for _, p := range fields[1:] {
				// strip protocol suffix, e.g. 8000/tcp
				p = strings.SplitN(p, "/", 2)[0]
				if n, err := strconv.Atoi(p); err == nil {
					facts.Ports = append(facts.Ports, n)
				}
			}
		case "VOLUME":
			facts.Volumes = append(facts.Volumes, parseVolumeArgs(fields[1:])...)
		case "USER":
			facts.User = fields[1]
		}
	}
	if err := sc.Err(); err != nil {
		return Facts{}, err
	}
	return facts, nil
}

// parseVolumeArgs handles both forms: VOLUME /a /b and VOLUME ["/a","/b"].
func parseVolumeArgs(args []string) []string {
	var out []string
	for _, a := range args {
		a = strings.Trim(a, `[],"`)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Check verifies Facts against the Policy. All violations are reported in
// a single error so the build log shows everything at once.
func Check(f Facts, p Policy) error {
	var problems []string

	if p.RequirePort != 0 {
		found := false
		for _, port := range f.Ports {
			if port == p.RequirePort {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("recipe does not expose required port %d", p.RequirePort))
		}
	}

	if p.RequireVolume != "" {
		found := false
		for _, v := range f.Volumes {
			if v == p.RequireVolume {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("recipe does not declare required volume %s", p.RequireVolume))
		}
	}

	if p.RequireNonRoot {
		switch f.User {
		case "":
			problems = append(problems, "recipe does not declare a runtime user")
		case "root", "0", "0:0":
			problems = append(problems, "recipe runs as root")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("recipe check failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
