package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Job is a closed rectangle of tile coordinates to fetch and merge.
type Job struct {
	Name   string `yaml:"name"`
	XStart int    `yaml:"x_start"`
	YStart int    `yaml:"y_start"`
	XEnd   int    `yaml:"x_end"`
	YEnd   int    `yaml:"y_end"`
}

// Width returns the number of tile columns.
func (j Job) Width() int {
	return j.XEnd - j.XStart + 1
}

// Height returns the number of tile rows.
func (j Job) Height() int {
	return j.YEnd - j.YStart + 1
}

// Tiles returns the number of tiles in the job.
func (j Job) Tiles() int {
	return j.Width() * j.Height()
}

// Contains reports whether (x, y) lies inside the job.
func (j Job) Contains(x, y int) bool {
	return x >= j.XStart && x <= j.XEnd && y >= j.YStart && y <= j.YEnd
}

// WithDefaultName returns j, named after its bounds if it has no name.
func (j Job) WithDefaultName() Job {
	if j.Name == "" {
		j.Name = fmt.Sprintf("x%d-%d_y%d-%d", j.XStart, j.XEnd, j.YStart, j.YEnd)
	}
	return j
}

// Validate checks the job bounds and name.
func (j Job) Validate() error {
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if strings.ContainsAny(j.Name, `/\`) || j.Name == "." || j.Name == ".." {
		return fmt.Errorf("job name %q must be a single path element", j.Name)
	}
	if j.XStart < 0 || j.YStart < 0 {
		return fmt.Errorf("job %s: coordinates must not be negative", j.Name)
	}
	if j.XEnd < j.XStart || j.YEnd < j.YStart {
		return fmt.Errorf("job %s: end must not be before start", j.Name)
	}
	return nil
}

// ParseJob parses a job given as "name:xs,ys,xe,ye" or "xs,ys,xe,ye".
func ParseJob(s string) (Job, error) {
	var job Job
	bounds := s
	if name, rest, ok := strings.Cut(s, ":"); ok {
		job.Name = strings.TrimSpace(name)
		bounds = rest
	}

	parts := strings.Split(bounds, ",")
	if len(parts) != 4 {
		return Job{}, fmt.Errorf("invalid job %q: want name:xs,ys,xe,ye", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Job{}, fmt.Errorf("invalid job %q: %w", s, err)
		}
		vals[i] = n
	}
	job.XStart, job.YStart, job.XEnd, job.YEnd = vals[0], vals[1], vals[2], vals[3]

	job = job.WithDefaultName()
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}
