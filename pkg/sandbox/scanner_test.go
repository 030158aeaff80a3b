package sandbox

import "testing"

func TestDenylistScanner(t *testing.T) {
	s := NewDenylistScanner()

	tests := []struct {
		name      string
		lang      string
		code      string
		wantEntry string
		wantNoun  string
	}{
		{"python clean", "python", "print('ok')", "", ""},
		{"python subprocess", "python", "import subprocess\nsubprocess.run(['ls'])", "subprocess", "function"},
		{"python os.system", "python", "import os\nos.system('ls')", "os.system", "function"},
		{"python eval", "python", "x = eval('1+1')", "eval", "function"},
		{"python dunder import", "python", "m = __import__('os')", "__import__", "function"},
		// Substring matching is coarse by construction.
		{"python substring hit", "python", "executor = 1", "exec", "function"},
		{"bash clean", "bash", `echo "it's fine"`, "", ""},
		{"bash rm -rf", "bash", "rm -rf /tmp/x", "rm -rf", "command"},
		{"bash redirect", "bash", "echo hi > out.txt", ">", "command"},
		{"bash sudo", "bash", "sudo ls", "sudo", "command"},
		{"javascript clean", "javascript", "console.log('ok')", "", ""},
		{"javascript child_process", "javascript", "const cp = require('child_process')", "require('child_process')", "operation"},
		{"javascript env", "javascript", "console.log(process.env.HOME)", "process.env", "operation"},
		{"unknown language passes", "ruby", "system('rm -rf /')", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Scan(tt.lang, tt.code)
			if tt.wantEntry == "" {
				if v != nil {
					t.Fatalf("Scan() = %+v, want nil", v)
				}
				return
			}
			if v == nil {
				t.Fatalf("Scan() = nil, want violation for %q", tt.wantEntry)
			}
			if v.Entry != tt.wantEntry {
				t.Errorf("Entry = %q, want %q", v.Entry, tt.wantEntry)
			}
			if v.Noun != tt.wantNoun {
				t.Errorf("Noun = %q, want %q", v.Noun, tt.wantNoun)
			}
		})
	}
}

func TestViolationMessage(t *testing.T) {
	v := &Violation{Language: "bash", Entry: "sudo", Noun: "command"}
	want := "Error: Use of potentially dangerous command 'sudo' is not allowed."
	if got := v.Message(); got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestDenylistFirstEntryWins(t *testing.T) {
	// "subprocess" precedes "popen" in the python list.
	v := NewDenylistScanner().Scan("python", "subprocess.Popen; os.popen('x')")
	if v == nil || v.Entry != "subprocess" {
		t.Errorf("Scan() = %+v, want entry subprocess", v)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	s := NewDenylistScanner()
	e := s.Entries("bash")
	e[0] = "mutated"
	if s.Entries("bash")[0] != "rm -rf" {
		t.Error("Entries exposed internal slice")
	}
}
