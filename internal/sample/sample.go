package sample

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultName = "cold-call"

var ErrUnknownSample = errors.New("unknown sample transcript")

//go:embed samples.yaml
var samplesYAML []byte

type Sample struct {
	Name       string `yaml:"name"`
	Title      string `yaml:"title"`
	Transcript string `yaml:"transcript"`
}

type catalog struct {
	Samples []Sample `yaml:"samples"`
}

// Library holds canned transcripts used when live capture is not.
type Library struct {
	byName map[string]Sample
}

func Load() (*Library, error) {
	return Parse(samplesYAML)
}

func Parse(data []byte) (*Library, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse samples: %w", err)
	}
	lib := &Library{byName: make(map[string]Sample, len(c.Samples))}
	for _, s := range c.Samples {
		s.Name = strings.TrimSpace(s.Name)
		s.Transcript = strings.TrimSpace(s.Transcript)
		if s.Name == "" || s.Transcript == "" {
			return nil, fmt.Errorf("parse samples: sample %q has no name or transcript", s.Name)
		}
		if _, dup := lib.byName[s.Name]; dup {
			return nil, fmt.Errorf("parse samples: duplicate sample %q", s.Name)
		}
		lib.byName[s.Name] = s
	}
	return lib, nil
}

func (l *Library) Get(name string) (Sample, error) {
	if name == "" {
		name = DefaultName
	}
	s, ok := l.byName[name]
	if !ok {
		return Sample{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownSample, name, strings.Join(l.Names(), ", "))
	}
	return s, nil
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
