package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/config"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// apply copies every value set in root onto m.
func apply(ctx context.Context, m *config.Model, root *fileRoot) error {
	if root.Program != nil {
		m.Program = *root.Program
	}
	if e := root.Engine; e != nil {
		setInt(&m.Engine.Workers, e.Workers)
		setInt(&m.Engine.EventBuffer, e.EventBuffer)
		if err := setDuration(&m.Engine.DefaultTimeout, e.DefaultTimeout, "engine.default_timeout"); err != nil {
			return err
		}
		if err := setDuration(&m.Engine.Grace, e.Grace, "engine.grace"); err != nil {
			return err
		}
	}
	if p := root.Planner; p != nil {
		if p.Optimization != nil {
			m.Planner.Optimization = *p.Optimization
		}
		if p.CPU != nil {
			m.Planner.CPU = *p.CPU
		}
		if p.MemoryBytes != nil {
			m.Planner.MemoryBytes = *p.MemoryBytes
		}
		if p.IOOps != nil {
			m.Planner.IOOps = *p.IOOps
		}
		setInt(&m.Planner.MaxUnits, p.MaxUnits)
		setInt(&m.Planner.MaxSplitParts, p.MaxSplitParts)
	}
	if mem := root.Memory; mem != nil && len(mem.Pools) > 0 {
		classes := make([]memory.PoolConfig, len(mem.Pools))
		for i, p := range mem.Pools {
			classes[i] = memory.PoolConfig{BlockSize: p.BlockSize, Blocks: p.Blocks}
		}
		m.Memory.Classes = classes
	}
	if c := root.Cache; c != nil {
		if c.Backend != nil {
			m.Cache.Backend = *c.Backend
		}
		if c.MaxBytes != nil {
			m.Cache.MaxBytes = *c.MaxBytes
		}
		if c.Dir != nil {
			m.Cache.Dir = *c.Dir
		}
		if err := setDuration(&m.Cache.TTL, c.TTL, "cache.ttl"); err != nil {
			return err
		}
	}
	if s := root.Server; s != nil {
		setInt(&m.Server.HealthcheckPort, s.HealthcheckPort)
	}
	for _, v := range root.Variables {
		val, err := translateVariable(ctx, v)
		if err != nil {
			return err
		}
		if val.IsNull() {
			// Declared without a value: the program default applies.
			continue
		}
		m.Variables[v.Name] = val
	}
	return nil
}

// translateVariable evaluates a variable's default and converts it to the
// declared type. A variable without a default binds a typed null.
func translateVariable(ctx context.Context, v *variableBlock) (cty.Value, error) {
	ty, err := typeExprToCtyType(ctx, v.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("variable '%s': %w", v.Name, err)
	}
	if isNullExpr(v.Default) {
		return cty.NullVal(ty), nil
	}
	val, diags := v.Default.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("invalid default value for variable '%s': %w", v.Name, diags)
	}
	if ty == cty.DynamicPseudoType {
		return val, nil
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("variable '%s': default is not a valid %s: %w", v.Name, ty.FriendlyName(), err)
	}
	ctxlog.FromContext(ctx).Debug("Variable translated.", "name", v.Name, "type", ty.FriendlyName())
	return converted, nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, field string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
