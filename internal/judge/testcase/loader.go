// Package testcase reads test cases stored as inputN.txt / outputN.txt pairs.
package testcase

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	inputPrefix  = "input"
	outputPrefix = "output"
	fileSuffix   = ".txt"
)

type pair struct {
	key    string
	num    int
	hasNum bool
}

// LoadDir loads test cases from a directory on disk.
func LoadDir(ctx context.Context, dir string) ([]model.TestCase, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.NotFound, "test case directory %s not found", dir)
	}
	if !info.IsDir() {
		return nil, appErr.Newf(appErr.InvalidParams, "%s is not a directory", dir)
	}
	return Load(ctx, os.DirFS(dir))
}

// Load reads every inputN.txt with a matching outputN.txt, ordered by N.
// Inputs without an output file are skipped.
func Load(ctx context.Context, fsys fs.FS) ([]model.TestCase, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "read test case directory failed")
	}

	names := make(map[string]bool, len(entries))
	var pairs []pair
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		names[name] = true
		if !strings.HasPrefix(name, inputPrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, inputPrefix), fileSuffix)
		p := pair{key: key}
		if n, err := strconv.Atoi(key); err == nil {
			p.num, p.hasNum = n, true
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.hasNum != b.hasNum {
			return a.hasNum
		}
		if a.hasNum && a.num != b.num {
			return a.num < b.num
		}
		return a.key < b.key
	})

	cases := make([]model.TestCase, 0, len(pairs))
	for _, p := range pairs {
		inName := inputPrefix + p.key + fileSuffix
		outName := outputPrefix + p.key + fileSuffix
		if !names[outName] {
			logger.Warn(ctx, "expected output missing, test case skipped", zap.String("input", inName), zap.String("output", outName))
			continue
		}
		stdin, err := fs.ReadFile(fsys, inName)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.InternalServerError, "read %s failed", inName)
		}
		expected, err := fs.ReadFile(fsys, outName)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.InternalServerError, "read %s failed", outName)
		}
		cases = append(cases, model.TestCase{
			ID:             "test" + p.key,
			Stdin:          stdin,
			ExpectedOutput: expected,
		})
	}
	return cases, nil
}
