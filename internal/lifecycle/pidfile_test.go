// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestPIDFile_Write(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	t.Run("writes PID file with correct content", func(t *testing.T) {
		p := NewPIDFile(pidPath)
		defer p.Remove()

		if err := p.Write(1234); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		// Verify file exists
		if !p.Exists() {
			t.Error("PID file does not exist after Write()")
		}

		// Verify content
		pid, err := p.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 1234 {
			t.Errorf("Read() = %d, want 1234", pid)
		}

		// Verify permissions
		info, err := os.Stat(pidPath)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if mode := info.Mode() & os.ModePerm; mode != 0600 {
			t.Errorf("PID file mode = %04o, want 0600", mode)
		}
	})

	t.Run("returns error if file already exists", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "duplicate.pid")
		p1 := NewPIDFile(pidPath)
		p2 := NewPIDFile(pidPath)

		defer p1.Remove()

		// First write should succeed
		if err := p1.Write(1234); err != nil {
			t.Fatalf("First Write() error = %v", err)
		}

		// Second write should fail
		err := p2.Write(5678)
		if !errors.Is(err, ErrPIDFileExists) {
			t.Errorf("Second Write() error = %v, want ErrPIDFileExists", err)
		}
	})

	t.Run("creates parent directory if missing", func(t *testing.T) {
		deepPath := filepath.Join(tmpDir, "nested", "dir", "test.pid")
		p := NewPIDFile(deepPath)
		defer p.Remove()

		if err := p.Write(1234); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		// Verify parent directory was created
		parentDir := filepath.Dir(deepPath)
		info, err := os.Stat(parentDir)
		if err != nil {
			t.Fatalf("Parent directory not created: %v", err)
		}

		// Verify parent directory permissions
		if mode := info.Mode() & os.ModePerm; mode != 0700 {
			t.Errorf("Parent directory mode = %04o, want 0700", mode)
		}
	})
}

func TestPIDFile_Replace(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("supersedes existing PID file", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "replace.pid")

		p1 := NewPIDFile(pidPath)
		if err := p1.Write(1111); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		p1.Remove()

		// Simulate a leftover file from a crashed run
		if err := os.WriteFile(pidPath, []byte("1111\n"), 0600); err != nil {
			t.Fatalf("Failed to create stale file: %v", err)
		}

		p2 := NewPIDFile(pidPath)
		defer p2.Remove()

		if err := p2.Replace(2222); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}

		pid, err := p2.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 2222 {
			t.Errorf("Read() = %d, want 2222", pid)
		}
	})

	t.Run("works when no file exists", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "replace-fresh.pid")
		p := NewPIDFile(pidPath)
		defer p.Remove()

		if err := p.Replace(3333); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}

		pid, err := p.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 3333 {
			t.Errorf("Read() = %d, want 3333", pid)
		}
	})
}

func TestPIDFile_Read(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("reads valid PID", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "valid.pid")
		if err := os.WriteFile(pidPath, []byte("9999\n"), 0600); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		p := NewPIDFile(pidPath)
		pid, err := p.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 9999 {
			t.Errorf("Read() = %d, want 9999", pid)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "nonexistent.pid")
		p := NewPIDFile(pidPath)

		_, err := p.Read()
		if !os.IsNotExist(err) {
			t.Errorf("Read() error = %v, want os.IsNotExist", err)
		}
	})

	t.Run("returns error for invalid PID", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"non-numeric", "not-a-number\n"},
			{"negative", "-123\n"},
			{"zero", "0\n"},
			{"float", "123.45\n"},
			{"empty", ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				pidPath := filepath.Join(tmpDir, tt.name+".pid")
				if err := os.WriteFile(pidPath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}

				p := NewPIDFile(pidPath)
				_, err := p.Read()
				if !errors.Is(err, ErrInvalidPID) {
					t.Errorf("Read() error = %v, want ErrInvalidPID", err)
				}
			})
		}
	})

	t.Run("handles whitespace", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "whitespace.pid")
		if err := os.WriteFile(pidPath, []byte("  1234  \n"), 0600); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		p := NewPIDFile(pidPath)
		pid, err := p.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 1234 {
			t.Errorf("Read() = %d, want 1234", pid)
		}
	})
}

func TestPIDFile_Remove(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("removes PID file and releases lock", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "remove.pid")
		p := NewPIDFile(pidPath)

		if err := p.Write(1234); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		if err := p.Remove(); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		// Verify file is gone
		if p.Exists() {
			t.Error("PID file still exists after Remove()")
		}

		// Verify we can create a new one (lock was released)
		p2 := NewPIDFile(pidPath)
		defer p2.Remove()
		if err := p2.Write(5678); err != nil {
			t.Errorf("Failed to write new PID file after Remove(): %v", err)
		}
	})

	t.Run("succeeds if file already removed", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "already-removed.pid")
		p := NewPIDFile(pidPath)

		// Remove non-existent file should not error
		if err := p.Remove(); err != nil {
			t.Errorf("Remove() error = %v, want nil", err)
		}
	})
}

func TestPIDFile_DirectorySafety(t *testing.T) {
	t.Run("rejects world-writable directory", func(t *testing.T) {
		// This test may behave differently on different platforms
		// On macOS, temp dirs have sticky bit set which provides protection
		// even with 0777 permissions
		tmpDir := t.TempDir()
		unsafeDir := filepath.Join(tmpDir, "unsafe")
		if err := os.Mkdir(unsafeDir, 0777); err != nil {
			t.Fatalf("Failed to create unsafe directory: %v", err)
		}

		// Verify the directory is actually world-writable
		info, err := os.Stat(unsafeDir)
		if err != nil {
			t.Fatalf("Failed to stat unsafe directory: %v", err)
		}

		if info.Mode()&0002 == 0 {
			t.Skip("Platform doesn't support world-writable directories in this context")
		}

		pidPath := filepath.Join(unsafeDir, "test.pid")
		p := NewPIDFile(pidPath)

		err = p.Write(1234)
		if err == nil {
			p.Remove()
			t.Error("Write() in world-writable directory succeeded, want error")
			return
		}

		if !errors.Is(err, ErrUnsafeDirectory) {
			t.Errorf("Write() error = %v, want ErrUnsafeDirectory", err)
		}
	})
}

func TestPIDFile_FileLocking(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "flock.pid")

	t.Run("holds exclusive lock while file is open", func(t *testing.T) {
		p := NewPIDFile(pidPath)
		defer p.Remove()

		if err := p.Write(1234); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		// Try to acquire lock from another file descriptor
		f, err := os.OpenFile(pidPath, os.O_RDWR, 0600)
		if err != nil {
			t.Fatalf("Failed to open PID file: %v", err)
		}
		defer f.Close()

		// Non-blocking lock attempt should fail
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			t.Error("Acquired lock on already-locked file")
			syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		}
		if err != syscall.EWOULDBLOCK {
			t.Errorf("Flock error = %v, want EWOULDBLOCK", err)
		}
	})

	t.Run("releases lock on Remove", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "flock-release.pid")
		p := NewPIDFile(pidPath)

		if err := p.Write(1234); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		if err := p.Remove(); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		// Should be able to write a new PID file now
		p2 := NewPIDFile(pidPath)
		defer p2.Remove()

		if err := p2.Write(5678); err != nil {
			t.Errorf("Second Write() after Remove() error = %v", err)
		}
	})
}

func TestStepPIDPath(t *testing.T) {
	got := StepPIDPath("/run/user/1000/ignite", "display")
	want := filepath.Join("/run/user/1000/ignite", "display.pid")
	if got != want {
		t.Errorf("StepPIDPath() = %s, want %s", got, want)
	}
}
