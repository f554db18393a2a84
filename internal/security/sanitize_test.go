package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeArgs_AllowsComplexSplitViewFiltergraph(t *testing.T) {
	args := []string{
		"-i", "input.mp4", "-filter_complex",
		"[0:v]split=2[left][right];[left]crop=540:960:0:0,scale=540:960,setsar=1[l];" +
			"[right]crop=540:960:540:0,scale=540:960,setsar=1[r];[l][r]vstack=inputs=2[out]",
		"-map", "[out]", "output.mp4",
	}
	require.NoError(t, SanitizeArgs(args), "expected split-view filtergraph to be allowed")
}

func TestSanitizeArgs_AllowsFilterComplexSyntax(t *testing.T) {
	args := []string{"-vf", "crop=1080:1920:420:0,scale=1080:1920,setsar=1"}
	require.NoError(t, SanitizeArgs(args), "expected basic crop filter to be allowed")
}

func TestSanitizeArgs_BlocksDangerousCharsInNonFilterArgs(t *testing.T) {
	args := []string{"-i", "input.mp4; rm -rf /"}
	require.Error(t, SanitizeArgs(args), "expected dangerous characters in a non-filter arg to be rejected")
}

func TestSanitizeArgs_BlocksDangerousCharsInFilterValues(t *testing.T) {
	for _, bad := range []string{
		"crop=100:100:0:0`whoami`",
		"crop=100:100:0:0|cat /etc/passwd",
	} {
		require.Error(t, SanitizeArgs([]string{"-vf", bad}), "expected filter value %q to be rejected", bad)
	}
}

func TestSanitizeArgs_AllowsColonsInNonFilterArgs(t *testing.T) {
	args := []string{"-ss", "00:01:30", "-c:v", "libx264"}
	require.NoError(t, SanitizeArgs(args), "expected timestamps and codec options with colons to be allowed")
}

func TestSanitizeArgs_RejectsDangerousFilterNames(t *testing.T) {
	for _, bad := range []string{
		"sendcmd=f=commands.txt",
		"zmq=bind_address=tcp\\://*\\:5555",
		"movie=overlay.mp4",
		"amovie=audio.mp3",
	} {
		require.Error(t, SanitizeArgs([]string{"-filter_complex", bad}), "expected dangerous filter %q to be rejected", bad)
	}
}

func TestValidatePath_RejectsTraversal(t *testing.T) {
	require.Error(t, ValidatePath("../../etc/passwd", []string{"mp4"}), "expected path traversal to be rejected")
}

func TestValidatePath_RejectsDisallowedExtension(t *testing.T) {
	require.Error(t, ValidatePath("video.exe", []string{"mp4", "mov"}), "expected disallowed extension to be rejected")
}
