package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swind/go-process-pool/core"
)

// JobFile describes a pool of jobs:
//
//	name: ci
//	max_simultaneous: 2
//	interval: 50ms
//	jobs:
//	  - name: lint
//	    command: make
//	    args: [lint]
//	    priority: 2
//	    tags: {type: check}
//	groups:
//	  - name: tests
//	    priority: 1.5
//	    jobs:
//	      - command: go
//	        args: [test, ./...]
//
// Settings left out of the file fall back to PoolSettings.
type JobFile struct {
	Group `yaml:",inline"`

	MaxSimultaneous *int           `yaml:"max_simultaneous"`
	RunInstantly    *bool          `yaml:"run_instantly"`
	Interval        *time.Duration `yaml:"interval"`
}

// Group is a named set of jobs and nested groups. Each group becomes a
// nested pool, whose runs its parent schedules directly.
type Group struct {
	Name string `yaml:"name"`
	Tags TagList `yaml:"tags"`

	// Priority is the default priority of the group's jobs.
	Priority *float64 `yaml:"priority"`

	Jobs   []Job   `yaml:"jobs"`
	Groups []Group `yaml:"groups"`
}

// Job is one external command.
type Job struct {
	Name     string   `yaml:"name"`
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	Dir      string   `yaml:"dir"`
	Env      []string `yaml:"env"`
	Priority *float64 `yaml:"priority"`
	Tags     TagList  `yaml:"tags"`
}

// TagList is an ordered tag list. In YAML it is either a mapping, kept in
// document order, or a sequence of "key=value" or bare value strings.
type TagList core.Tags

func (t *TagList) UnmarshalYAML(node *yaml.Node) error {
	var tags core.Tags
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			tags = append(tags, core.T(node.Content[i].Value, node.Content[i+1].Value))
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: tag must be a string", item.Line)
			}
			key, value, ok := strings.Cut(item.Value, "=")
			if !ok {
				key, value = "", item.Value
			}
			tags = append(tags, core.T(key, value))
		}
	default:
		return fmt.Errorf("line %d: tags must be a mapping or a sequence", node.Line)
	}
	*t = TagList(tags)
	return nil
}

// ParseJobFile decodes a job file. Unknown keys are rejected.
func ParseJobFile(data []byte) (*JobFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config: job file is empty")
	}
	var f JobFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode job file: %w", err)
	}
	return &f, nil
}

// LoadJobFile reads, decodes and validates the job file at path.
func LoadJobFile(path string) (*JobFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := ParseJobFile(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate reports every problem in the file.
func (f *JobFile) Validate() error {
	var errs []error
	if f.MaxSimultaneous != nil && *f.MaxSimultaneous < 0 {
		errs = append(errs, fmt.Errorf("max_simultaneous must not be negative, got %d", *f.MaxSimultaneous))
	}
	if f.Interval != nil && *f.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", *f.Interval))
	}
	errs = append(errs, f.Group.validate(f.displayName())...)
	if f.Count() == 0 {
		errs = append(errs, errors.New("no jobs defined"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid job file: %w", err)
	}
	return nil
}

func (g *Group) validate(path string) []error {
	var errs []error
	for i, job := range g.Jobs {
		if strings.TrimSpace(job.Command) == "" {
			errs = append(errs, fmt.Errorf("%s.jobs[%d]: command is required", path, i))
		}
		for _, kv := range job.Env {
			if !strings.Contains(kv, "=") {
				errs = append(errs, fmt.Errorf("%s.jobs[%d]: env entry %q is not KEY=VALUE", path, i, kv))
			}
		}
	}
	for i := range g.Groups {
		name := g.Groups[i].Name
		if name == "" {
			name = fmt.Sprintf("groups[%d]", i)
		}
		errs = append(errs, g.Groups[i].validate(path+"."+name)...)
	}
	return errs
}

// Count returns the number of jobs in the file, nested groups included.
func (g *Group) Count() int {
	n := len(g.Jobs)
	for i := range g.Groups {
		n += g.Groups[i].Count()
	}
	return n
}

func (f *JobFile) displayName() string {
	if f.Name == "" {
		return "pool"
	}
	return f.Name
}

// Settings applies the file's pool settings over s.
func (f *JobFile) Settings(s PoolSettings) PoolSettings {
	if f.MaxSimultaneous != nil {
		s.MaxSimultaneous = *f.MaxSimultaneous
	}
	if f.RunInstantly != nil {
		s.RunInstantly = *f.RunInstantly
	}
	if f.Interval != nil {
		s.Interval = *f.Interval
	}
	return s
}

// Build creates the pool tree described by the file. settings should already
// include the file's own settings, see Settings.
func (f *JobFile) Build(settings PoolSettings, logger core.Logger, metrics core.Metrics) (*core.Pool, error) {
	cfg := settings.PoolConfig(f.displayName(), logger, metrics)
	cfg.Tags = core.Tags(f.Tags)
	root, err := core.NewPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := f.Group.populate(root, settings, logger, metrics); err != nil {
		return nil, err
	}
	return root, nil
}

func (g *Group) populate(pool *core.Pool, settings PoolSettings, logger core.Logger, metrics core.Metrics) error {
	priority := core.DefaultPriority
	if g.Priority != nil {
		priority = *g.Priority
	}

	for _, job := range g.Jobs {
		if err := pool.Add(job.run(priority)); err != nil {
			return fmt.Errorf("config: add job %s: %w", job.displayName(), err)
		}
	}

	for i := range g.Groups {
		child := &g.Groups[i]
		cfg := settings.PoolConfig(child.displayName(pool.Name(), i), logger, metrics)
		cfg.RunInstantly = false
		cfg.Tags = core.Tags(child.Tags)
		nested, err := core.NewPool(cfg)
		if err != nil {
			return err
		}
		// Set after construction so an explicit priority of 0 is kept.
		if child.Priority != nil {
			nested.SetPriority(*child.Priority)
		} else {
			nested.SetPriority(priority)
		}
		if err := child.populate(nested, settings, logger, metrics); err != nil {
			return err
		}
		if err := pool.Add(nested); err != nil {
			return fmt.Errorf("config: add group %s: %w", nested.Name(), err)
		}
	}
	return nil
}

func (g *Group) displayName(parent string, index int) string {
	if g.Name != "" {
		return parent + "/" + g.Name
	}
	return fmt.Sprintf("%s/%d", parent, index)
}

func (j Job) displayName() string {
	if j.Name != "" {
		return j.Name
	}
	return strings.TrimSpace(strings.Join(append([]string{j.Command}, j.Args...), " "))
}

func (j Job) run(defaultPriority float64) *core.ProcessRun {
	cmd := exec.Command(j.Command, j.Args...)
	cmd.Dir = j.Dir
	if len(j.Env) > 0 {
		cmd.Env = append(os.Environ(), j.Env...)
	}

	priority := defaultPriority
	if j.Priority != nil {
		priority = *j.Priority
	}
	return core.NewProcessRun(cmd,
		core.WithName(j.displayName()),
		core.WithPriority(priority),
		core.WithTags(core.Tags(j.Tags)...),
	)
}
