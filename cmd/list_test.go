package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListRequiresAFilterFlag(t *testing.T) {
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"list"})

	err := rootCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least one of the flags in the group")
}
