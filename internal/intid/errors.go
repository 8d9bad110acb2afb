package intid

import "fmt"

func indexOutOfRange(i, n int) string {
	return fmt.Sprintf("intid: index %d out of range [0,%d)", i, n)
}
