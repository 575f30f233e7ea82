package main

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	Brand  = color.New(color.FgHiGreen, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Info   = color.New(color.FgCyan)
	Good   = color.New(color.FgGreen)
)

// stat prints one aligned label/value line
func stat(label string, value interface{}) {
	fmt.Printf("  %s  %v\n", Brand.Sprintf("%-12s", label), value)
}

// warnStat prints a stat in the warning color when it is non-zero
func warnStat(label string, n int) {
	if n == 0 {
		stat(label, n)
		return
	}
	fmt.Printf("  %s  %s\n", Brand.Sprintf("%-12s", label), Warn.Sprint(n))
}
