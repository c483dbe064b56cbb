// Package casa renders CASA tasks into commands.
//
// A task is run as a Python one-liner importing the task from casatasks:
//
//	python3 -c "from casatasks import applycal; applycal(vis='SB1.ms', gaintable='pcal1')"
package casa

import (
	"fmt"
	"strconv"
	"strings"
)

// Python is the interpreter which runs tasks.
var Python = "python3"

// Param is a keyword argument of a task.
//
// Value should be string, bool, int, float64 or []string.
type Param struct {
	Name  string
	Value any
}

// Task is an invocation of a task in casatasks.
//
// Parameters are rendered in the order of Params.
type Task struct {
	Name   string
	Params []Param
}

// Script returns Python statements calling the task.
func (t Task) Script() string {
	kwargs := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		kwargs = append(kwargs, p.Name+"="+literal(p.Value))
	}
	return fmt.Sprintf(
		"from casatasks import %s; %s(%s)",
		t.Name, t.Name, strings.Join(kwargs, ", "),
	)
}

// Args returns the argument list running the task.
func (t Task) Args() []string {
	return []string{Python, "-c", t.Script()}
}

func (t Task) String() string {
	return t.Script()
}

// Get returns the value of the parameter.
func (t Task) Get(name string) (any, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

func literal(v any) string {
	switch vv := v.(type) {
	case string:
		return pystr(vv)
	case bool:
		if vv {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(vv)
	case float64:
		s := strconv.FormatFloat(vv, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case []string:
		items := make([]string, len(vv))
		for i := range vv {
			items[i] = pystr(vv[i])
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		panic(fmt.Sprintf("casa: unsupported parameter type %T", v))
	}
}

func pystr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return "'" + s + "'"
}
