package planner

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/backmassage/neurobatch/internal/config"
	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/tool"
	"github.com/backmassage/neurobatch/internal/workflow"
)

// BuildPlan expands def for subject s. It is the single place where
// templates become paths, so every later stage works with concrete values.
//
// Flow:
//  1. Built-in placeholders from the subject and cfg ({base}, {sub}, {threads}, ...)
//  2. Definition vars, in declaration order, each seeing the ones before it
//  3. Pipeline env, then step env on top
//  4. Per step: tool, args, inputs, outputs, workdir, timeout
func BuildPlan(cfg *config.Config, def workflow.Definition, s naming.Subject) (*Plan, error) {
	vars, err := Scope(cfg, def, s)
	if err != nil {
		return nil, err
	}

	baseEnv, err := expandEnv(def.Env, vars)
	if err != nil {
		return nil, fmt.Errorf("%s: env: %w", s, err)
	}

	plan := &Plan{
		Subject:  s,
		Pipeline: def.Name,
		Dir:      vars[naming.VarSubdir],
		Steps:    make([]PlannedStep, 0, len(def.Steps)),
	}
	for i, step := range def.Steps {
		ps, err := planStep(cfg, step, vars, baseEnv)
		if err != nil {
			return nil, fmt.Errorf("%s step %s: %w", s, step.Name, err)
		}
		ps.Index = i
		plan.Steps = append(plan.Steps, ps)
	}
	return plan, nil
}

// Scope returns the placeholder values visible to every step template of
// def for subject s.
func Scope(cfg *config.Config, def workflow.Definition, s naming.Subject) (naming.Vars, error) {
	vars := naming.SubjectVars(cfg.BaseDir, s)
	vars[naming.VarThreads] = strconv.Itoa(cfg.Threads)
	for _, v := range def.Vars {
		val, err := naming.Expand(v.Value, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: var %s: %w", s, v.Name, err)
		}
		vars[v.Name] = val
	}
	return vars, nil
}

func planStep(cfg *config.Config, step workflow.Step, vars naming.Vars, baseEnv map[string]string) (PlannedStep, error) {
	ps := PlannedStep{Name: step.Name, Description: step.Description}

	name, err := naming.Expand(step.Tool, vars)
	if err != nil {
		return ps, err
	}
	args, err := naming.ExpandAll(step.Args, vars)
	if err != nil {
		return ps, err
	}
	if ps.Inputs, err = expandPaths(step.Inputs, vars); err != nil {
		return ps, err
	}
	if ps.Outputs, err = expandPaths(step.Outputs, vars); err != nil {
		return ps, err
	}

	dir := vars[naming.VarSubdir]
	if step.Workdir != "" {
		if dir, err = naming.Expand(step.Workdir, vars); err != nil {
			return ps, err
		}
	}

	env, err := expandEnv(step.Env, vars)
	if err != nil {
		return ps, err
	}
	merged := make(map[string]string, len(baseEnv)+len(env))
	for k, v := range baseEnv {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	if len(merged) == 0 {
		merged = nil
	}

	timeout := step.Timeout.Std()
	if timeout == 0 {
		timeout = cfg.StepTimeout
	}

	ps.Command = tool.Command{
		Name:    name,
		Args:    args,
		Dir:     dir,
		Env:     merged,
		Timeout: timeout,
	}
	return ps, nil
}

// expandPaths expands and cleans path templates.
func expandPaths(tmpls []string, vars naming.Vars) ([]string, error) {
	paths, err := naming.ExpandAll(tmpls, vars)
	if err != nil {
		return nil, err
	}
	for i, p := range paths {
		paths[i] = filepath.Clean(p)
	}
	return paths, nil
}

func expandEnv(env map[string]string, vars naming.Vars) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(env))
	for k, tmpl := range env {
		v, err := naming.Expand(tmpl, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
