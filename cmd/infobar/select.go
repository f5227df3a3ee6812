package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseSelection 解析 --select："1,3-5" => [1 3 4 5]。
// 空串或 "all" 表示全部（返回 nil）。序号必须落在 [1, max]，结果去重并升序。
func parseSelection(raw string, max int) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}

	seen := map[int]struct{}{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		lo, hi, err := parseRange(tok)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > max {
			return nil, fmt.Errorf("序号 %q 超出范围 1-%d", tok, max)
		}
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("--select 没有有效序号：%q", raw)
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func parseRange(tok string) (int, int, error) {
	a, b, isRange := strings.Cut(tok, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("序号非法：%q", tok)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("序号非法：%q", tok)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("范围倒置：%q", tok)
	}
	return lo, hi, nil
}
