// Package staging moves a local artifact directory into HDFS through a
// container that has the HDFS client installed.
package staging

import (
	"fmt"
	"path"
	"strconv"
)

// Step names, in execution order.
const (
	StepMkdir   = "mkdir"
	StepPrepare = "prepare"
	StepCopy    = "copy"
	StepPut     = "put"
	StepSetrep  = "setrep"
)

// Config locates the container and the HDFS target.
type Config struct {
	Container   string
	StagingDir  string // directory inside the container
	Replication int
}

// Step is one unit of the transfer. Copy steps set Src and Dst; command steps set Cmd.
type Step struct {
	Name string
	Cmd  []string
	Src  string
	Dst  string
}

// IsCopy reports whether the step copies files into the container.
func (s Step) IsCopy() bool {
	return s.Cmd == nil
}

func (s Step) String() string {
	if s.IsCopy() {
		return fmt.Sprintf("%s: %s -> %s", s.Name, s.Src, s.Dst)
	}
	return fmt.Sprintf("%s: %v", s.Name, s.Cmd)
}

// Shell scripts for the steps that need one. Paths are passed as positional
// parameters and never interpolated into the script text.
const (
	prepareScript = `rm -rf -- "$1" && mkdir -p -- "$1"`
	putScript     = `hdfs dfs -put -f "$1"/* "$2"/`
)

// Plan returns the ordered steps that upload localDir into target.
// The staging directory is recreated so stale files from earlier periods are
// not uploaded twice.
func Plan(localDir, target string, cfg Config) []Step {
	staging := path.Clean(cfg.StagingDir)
	target = path.Clean(target)
	return []Step{
		{Name: StepMkdir, Cmd: []string{"hdfs", "dfs", "-mkdir", "-p", target}},
		{Name: StepPrepare, Cmd: []string{"sh", "-c", prepareScript, "sh", staging}},
		{Name: StepCopy, Src: localDir, Dst: staging},
		// The glob needs a shell.
		{Name: StepPut, Cmd: []string{"sh", "-c", putScript, "sh", staging, target}},
		{Name: StepSetrep, Cmd: []string{"hdfs", "dfs", "-setrep", "-R", "-w", strconv.Itoa(cfg.Replication), target}},
	}
}
