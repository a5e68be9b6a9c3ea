package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMain_ExitCodes(t *testing.T) {
	var code = -1
	osExit = func(c int) { code = c }
	t.Cleanup(func() { osExit = os.Exit })

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = []string{"rvlookup", "version"}
	main()
	assert.Equal(t, -1, code, "success does not call exit")

	os.Args = []string{"rvlookup", "no-such-command"}
	main()
	assert.Equal(t, 1, code)
}
