package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatAuto  = "auto"
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func addFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "format", formatAuto, "输出格式：auto|table|json|yaml（auto：终端为表格，否则 JSON）")
}

// resolveFormat 把 auto 落到具体格式：stdout 是终端 => table，否则 json。
func resolveFormat(cmd *cobra.Command, requested string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(requested)); f {
	case "", formatAuto:
		if isTerminal(cmd.OutOrStdout()) {
			return formatTable, nil
		}
		return formatJSON, nil
	case formatTable, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("--format 只能是 auto|table|json|yaml，实际是 %q", requested)
	}
}

// emit 按格式输出：json/yaml 只写一个文档；table 交给 renderHuman。
func emit(cmd *cobra.Command, format string, v any, renderHuman func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		return writeJSON(w, v)
	case formatYAML:
		return writeYAML(w, v)
	default:
		renderHuman(w)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML 先经过 JSON，保证字段名与 JSON 输出一致（结构体只声明了 json tag）。
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(b, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progressWriter 只在交互终端启用进度输出；默认走 stderr（不污染 stdout JSON）。
func progressWriter(cmd *cobra.Command) (io.Writer, bool) {
	if w := cmd.ErrOrStderr(); isTerminal(w) {
		return w, true
	}
	return nil, false
}
