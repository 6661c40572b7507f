package cstate

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// detectFamilyModel parses /proc/cpuinfo for the first "cpu family" and
// "model" fields using a plain bufio.Scanner + strings.Fields scan.
func detectFamilyModel() (family, model int) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "cpu family"):
			family = parseColonInt(line)
		case strings.HasPrefix(line, "model") && !strings.HasPrefix(line, "model name"):
			model = parseColonInt(line)
		}
		if family != 0 && model != 0 {
			break
		}
	}
	return family, model
}

func parseColonInt(line string) int {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return 0
	}
	v, _ := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	return v
}
