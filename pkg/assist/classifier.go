package assist

import "regexp"

// MaxFlaggedConfidence caps the confidence of any answer whose commands
// match the classifier or that required fallback parsing.
const MaxFlaggedConfidence = 0.6

// dangerousPatterns is the fixed list of high-risk command shapes. The
// classifier is a pure text match; it knows nothing about the remote host.
var dangerousPatterns = []struct {
	re      *regexp.Regexp
	warning string
}{
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+/(\s|$)`), "recursively removes the filesystem root"},
	{regexp.MustCompile(`\bdd\s+if=`), "raw disk copy can destroy data"},
	{regexp.MustCompile(`\bmkfs(\.\w+)?\b`), "formats a filesystem, destroying its contents"},
	{regexp.MustCompile(`\bfdisk\b`), "repartitioning can destroy data"},
	{regexp.MustCompile(`\bshutdown\b`), "shuts the remote host down"},
	{regexp.MustCompile(`\breboot\b`), "reboots the remote host"},
	{regexp.MustCompile(`\bhalt\b`), "halts the remote host"},
	{regexp.MustCompile(`\bpoweroff\b`), "powers the remote host off"},
	{regexp.MustCompile(`\bkill\s+(-\S+\s+)?1(\s|$)`), "kills PID 1, crashing the host"},
	{regexp.MustCompile(`\bpkill\s+(-[a-zA-Z]*\s+)*-f\b`), "pattern kill can match unintended processes"},
	{regexp.MustCompile(`\bkillall\b`), "kills every matching process"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd)[a-z]`), "writes directly to a block device"},
}

// ClassifyCommand returns the warnings triggered by a single command, or nil
// when it matches no high-risk pattern.
func ClassifyCommand(command string) []string {
	var warnings []string
	for _, p := range dangerousPatterns {
		if p.re.MatchString(command) {
			warnings = append(warnings, "dangerous command: "+p.warning)
		}
	}
	return warnings
}

// ClassifyCommands runs the classifier over a command list and returns the
// combined warnings.
func ClassifyCommands(commands []string) []string {
	var warnings []string
	for _, cmd := range commands {
		warnings = append(warnings, ClassifyCommand(cmd)...)
	}
	return warnings
}
