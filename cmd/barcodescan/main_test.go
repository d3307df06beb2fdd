package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatsCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := formatsCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--qr"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 7)
	assert.Contains(t, out.String(), "org.gs1.EAN-13")
	assert.Contains(t, out.String(), "org.iso.QRCode")
}

func TestRenderThenScan(t *testing.T) {
	dir := t.TempDir()
	ean := filepath.Join(dir, "ean.png")
	code39 := filepath.Join(dir, "code39.png")

	render := renderCommand()
	render.SetArgs([]string{"-o", ean, "5901234123457"})
	require.NoError(t, render.Execute())

	render = renderCommand()
	render.SetArgs([]string{"-s", "Code39", "--width", "400", "-o", code39, "SCAN-42"})
	require.NoError(t, render.Execute())

	var out bytes.Buffer
	scan := scanCommand()
	scan.SetOut(&out)
	scan.SetArgs([]string{"--interval", "1ms", ean})
	require.NoError(t, scan.Execute())
	assert.Equal(t, "[EAN13] 5901234123457\n", out.String())

	out.Reset()
	scan = scanCommand()
	scan.SetOut(&out)
	scan.SetArgs([]string{"--each", "--interval", "1ms", ean, code39})
	require.NoError(t, scan.Execute())
	assert.Equal(t, ean+": [EAN13] 5901234123457\n"+code39+": [Code39] SCAN-42\n", out.String())
}

func TestScanReportsNoBarcode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank.png")

	// A QR code is not recognized without --qr.
	render := renderCommand()
	render.SetArgs([]string{"-s", "QR", "--width", "200", "--height", "200", "-o", path, "hidden"})
	require.NoError(t, render.Execute())

	scan := scanCommand()
	scan.SetOut(&bytes.Buffer{})
	scan.SetErr(&bytes.Buffer{})
	scan.SetArgs([]string{"--interval", "1ms", path})
	assert.ErrorIs(t, scan.Execute(), errNoBarcode)

	var out bytes.Buffer
	scan = scanCommand()
	scan.SetOut(&out)
	scan.SetArgs([]string{"--qr", "--interval", "1ms", path})
	require.NoError(t, scan.Execute())
	assert.Equal(t, "[QR] hidden\n", out.String())
}
