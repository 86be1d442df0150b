package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-loader/wasm"
)

type interactiveModel struct {
	err      error
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module
	filename string
	result   string
	entries  []entry
	visible  []int
	filter   textinput.Model
	inputs   []textinput.Model
	selected int
	focusIdx int
	loaded   bool
	state    modelState
}

// entry is one line of the surface listing.
type entry struct {
	kind   string // "import" or "export"
	module string
	name   string
	fn     api.FunctionDefinition
}

func (e entry) callable() bool {
	return e.kind == "export" && e.fn != nil
}

type modelState int

const (
	stateBrowse modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(filename string) *interactiveModel {
	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Prompt = "/ "
	filter.Width = 40
	filter.Focus()
	return &interactiveModel{
		filename: filename,
		filter:   filter,
		state:    stateBrowse,
	}
}

type loadedMsg struct {
	err      error
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	entries  []entry
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadModule)
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	surface, err := wasm.Inspect(data)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		// Still browsable; functions cannot be called.
		rt.Close(ctx)
		return loadedMsg{entries: surfaceEntries(surface, nil)}
	}
	return loadedMsg{rt: rt, compiled: compiled, entries: surfaceEntries(surface, compiled.ExportedFunctions())}
}

func surfaceEntries(s *wasm.Surface, funcs map[string]api.FunctionDefinition) []entry {
	var entries []entry
	for _, g := range s.Imports {
		for _, n := range g.Names {
			entries = append(entries, entry{kind: "import", module: g.Module, name: n})
		}
	}
	exports := append([]string(nil), s.Exports...)
	sort.Strings(exports)
	for _, name := range exports {
		entries = append(entries, entry{kind: "export", name: name, fn: funcs[name]})
	}
	return entries
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.rt != nil {
		m.rt.Close(ctx)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "up":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down":
			if m.state == stateBrowse && m.selected < len(m.visible)-1 {
				m.selected++
			}
			return m, nil

		case "enter":
			switch m.state {
			case stateBrowse:
				e, ok := m.current()
				if !ok || !e.callable() {
					return m, nil
				}
				m.prepareInputs(e)
				if len(m.inputs) == 0 {
					return m, m.callFunction()
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction()

			case stateShowResult:
				m.state = stateBrowse
				m.result = ""
				m.err = nil
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
			return m, nil

		case "esc":
			switch m.state {
			case stateBrowse:
				m.close()
				return m, tea.Quit
			case stateInputArgs:
				m.state = stateBrowse
				m.inputs = nil
			case stateShowResult:
				m.state = stateBrowse
				m.result = ""
				m.err = nil
			}
			return m, nil
		}

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.entries = msg.entries
		m.rt = msg.rt
		m.compiled = msg.compiled
		m.applyFilter()
		return m, nil

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	switch m.state {
	case stateBrowse:
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	case stateInputArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) applyFilter() {
	m.visible = filterEntries(m.entries, m.filter.Value())
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

// filterEntries returns the indexes of entries whose module or name contains
// query, case-insensitively.
func filterEntries(entries []entry, query string) []int {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []int
	for i, e := range entries {
		if query == "" ||
			strings.Contains(strings.ToLower(e.name), query) ||
			strings.Contains(strings.ToLower(e.module), query) {
			out = append(out, i)
		}
	}
	return out
}

func (m *interactiveModel) current() (entry, bool) {
	if m.selected < 0 || m.selected >= len(m.visible) {
		return entry{}, false
	}
	return m.entries[m.visible[m.selected]], true
}

func (m *interactiveModel) prepareInputs(e entry) {
	params := e.fn.ParamTypes()
	names := e.fn.ParamNames()
	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		if i < len(names) && names[i] != "" {
			ti.Prompt = names[i] + ": "
		}
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callFunction captures the selected export, its arguments and the instance
// on the Update goroutine. The returned command only performs the call.
func (m *interactiveModel) callFunction() tea.Cmd {
	e, ok := m.current()
	if !ok || !e.callable() {
		return resultCmd(callResultMsg{err: fmt.Errorf("no function selected")})
	}
	if m.instance == nil {
		if m.compiled == nil {
			return resultCmd(callResultMsg{err: fmt.Errorf("module not compiled")})
		}
		inst, err := m.rt.InstantiateModule(context.Background(), m.compiled, wazero.NewModuleConfig().WithName(""))
		if err != nil {
			return resultCmd(callResultMsg{err: fmt.Errorf("instantiate: %w", err)})
		}
		m.instance = inst
	}

	inst := m.instance
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	return func() tea.Msg {
		return call(context.Background(), inst, e, values)
	}
}

func resultCmd(msg callResultMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// call encodes values for e and invokes it on inst.
func call(ctx context.Context, inst api.Module, e entry, values []string) callResultMsg {
	params := e.fn.ParamTypes()
	if len(values) != len(params) {
		return callResultMsg{err: fmt.Errorf("%s takes %d argument(s), got %d", e.name, len(params), len(values))}
	}
	args := make([]uint64, len(params))
	for i, v := range values {
		arg, err := encodeArg(v, params[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg %d: %w", i, err)}
		}
		args[i] = arg
	}

	results, err := inst.ExportedFunction(e.name).Call(ctx, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResults(results, e.fn.ResultTypes())}
}

func encodeArg(value string, t api.ValueType) (uint64, error) {
	value = strings.TrimSpace(value)
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(value, 10, 32)
		return api.EncodeI32(int32(v)), err
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(value, 10, 64)
		return api.EncodeI64(v), err
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v)), err
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v), err
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func formatResults(results []uint64, types []api.ValueType) string {
	if len(results) == 0 {
		return "(no results)"
	}
	parts := make([]string, len(results))
	for i, r := range results {
		switch types[i] {
		case api.ValueTypeI32:
			parts[i] = strconv.FormatInt(int64(api.DecodeI32(r)), 10)
		case api.ValueTypeF32:
			parts[i] = strconv.FormatFloat(float64(api.DecodeF32(r)), 'g', -1, 32)
		case api.ValueTypeF64:
			parts[i] = strconv.FormatFloat(api.DecodeF64(r), 'g', -1, 64)
		default:
			parts[i] = strconv.FormatInt(int64(r), 10)
		}
	}
	return strings.Join(parts, ", ")
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Surface"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		if len(m.visible) == 0 {
			b.WriteString(helpStyle.Render("  no matches"))
			b.WriteString("\n")
		}
		for i, idx := range m.visible {
			line := formatEntry(m.entries[idx])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("type to filter • ↑/↓ select • enter call export • esc quit"))

	case stateInputArgs:
		e, _ := m.current()
		b.WriteString(fmt.Sprintf("Calling %s\n\n", nameStyle.Render(e.name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e, _ := m.current()
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", nameStyle.Render(e.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • ctrl+c quit"))
	}

	return b.String()
}

func formatEntry(e entry) string {
	if e.kind == "import" {
		return "import " + moduleStyle.Render(e.module) + "." + nameStyle.Render(e.name)
	}
	if e.fn == nil {
		return "export " + nameStyle.Render(e.name)
	}
	var params []string
	for _, p := range e.fn.ParamTypes() {
		params = append(params, api.ValueTypeName(p))
	}
	var results []string
	for _, r := range e.fn.ResultTypes() {
		results = append(results, api.ValueTypeName(r))
	}
	sig := "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		sig += " -> " + strings.Join(results, ", ")
	}
	return "export " + nameStyle.Render(e.name) + moduleStyle.Render(sig)
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newInteractiveModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
