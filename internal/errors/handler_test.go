package errors

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNewErrorHandler(t *testing.T) {
	handler, err := NewErrorHandler()
	if err != nil {
		t.Fatalf("NewErrorHandler() failed: %v", err)
	}

	if handler == nil {
		t.Fatal("NewErrorHandler() returned nil handler")
	}

	if handler.logger == nil {
		t.Error("ErrorHandler.logger is nil")
	}

	if handler.console == nil {
		t.Error("ErrorHandler.console is nil")
	}
}

func TestErrorHandler_Handle_BakekitError(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	t.Setenv("BAKEKIT_LOG_DIR", logDir)

	handler, err := NewErrorHandler()
	if err != nil {
		t.Fatalf("NewErrorHandler() failed: %v", err)
	}

	testErr := NewStageError(
		"Failed to install permanent packages",
		"apk add exited non-zero",
		"Check network access from the build container",
		errors.New("exit status 1"),
	)

	handler.Handle(testErr)

	logFile := filepath.Join(logDir, "bakekit.log")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestErrorHandler_Handle_GenericError(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	t.Setenv("BAKEKIT_LOG_DIR", logDir)

	handler, err := NewErrorHandler()
	if err != nil {
		t.Fatalf("NewErrorHandler() failed: %v", err)
	}

	handler.Handle(errors.New("generic test error"))

	logFile := filepath.Join(logDir, "bakekit.log")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestErrorHandler_Handle_NilError(t *testing.T) {
	handler, err := NewErrorHandler()
	if err != nil {
		t.Fatalf("NewErrorHandler() failed: %v", err)
	}

	// Handle nil error should not panic
	handler.Handle(nil)
}

func TestGetErrorTypeName(t *testing.T) {
	tests := []struct {
		errorType error
		expected  string
	}{
		{ErrBakefileNotFound, "bakefile_not_found"},
		{ErrBakefileParse, "bakefile_parse_failed"},
		{ErrManifestNotFound, "manifest_not_found"},
		{ErrManifestParse, "manifest_parse_failed"},
		{ErrStageFailed, "stage_failed"},
		{ErrIdentityCreation, "identity_creation_failed"},
		{ErrFinalizationPolicy, "finalization_policy_violation"},
		{ErrSourceFailed, "source_failed"},
		{ErrRuntimeFailed, "runtime_failed"},
		{ErrRegistryFailed, "registry_failed"},
		{ErrFileSystemFailed, "filesystem_failed"},
		{errors.New("unknown"), "unknown"},
	}

	for _, test := range tests {
		result := getErrorTypeName(test.errorType)
		if result != test.expected {
			t.Errorf("getErrorTypeName(%v) = %q, want %q", test.errorType, result, test.expected)
		}
	}
}

func TestGetDefaultHandler(t *testing.T) {
	resetDefaultHandler()
	defer resetDefaultHandler()

	handler1, err1 := GetDefaultHandler()
	if err1 != nil {
		t.Fatalf("GetDefaultHandler() first call failed: %v", err1)
	}

	handler2, err2 := GetDefaultHandler()
	if err2 != nil {
		t.Fatalf("GetDefaultHandler() second call failed: %v", err2)
	}

	if handler1 != handler2 {
		t.Error("GetDefaultHandler() should return the same instance on multiple calls")
	}
}

func TestHandleError(t *testing.T) {
	resetDefaultHandler()
	defer resetDefaultHandler()

	logDir := filepath.Join(t.TempDir(), "logs")
	t.Setenv("BAKEKIT_LOG_DIR", logDir)

	HandleError(errors.New("test error for HandleError"))

	logFile := filepath.Join(logDir, "bakekit.log")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Log file was not created by HandleError")
	}
}

func TestBakekitError_Error(t *testing.T) {
	originalErr := errors.New("original error message")
	bakekitErr := NewStageError("context", "cause", "suggestion", originalErr)

	if bakekitErr.Error() != originalErr.Error() {
		t.Errorf("BakekitError.Error() = %q, want %q", bakekitErr.Error(), originalErr.Error())
	}
}

func TestBakekitError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error message")
	bakekitErr := NewStageError("context", "cause", "suggestion", originalErr)

	if bakekitErr.Unwrap() != originalErr {
		t.Error("BakekitError.Unwrap() should return the original error")
	}
}

func TestErrorConstructors(t *testing.T) {
	originalErr := errors.New("test error")

	tests := []struct {
		name         string
		constructor  func(string, string, string, error) *BakekitError
		expectedType error
	}{
		{"NewBakefileError", NewBakefileError, ErrBakefileNotFound},
		{"NewParseError", NewParseError, ErrBakefileParse},
		{"NewManifestError", NewManifestError, ErrManifestParse},
		{"NewStageError", NewStageError, ErrStageFailed},
		{"NewIdentityError", NewIdentityError, ErrIdentityCreation},
		{"NewFinalizationError", NewFinalizationError, ErrFinalizationPolicy},
		{"NewRuntimeError", NewRuntimeError, ErrRuntimeFailed},
		{"NewRegistryError", NewRegistryError, ErrRegistryFailed},
		{"NewFileSystemError", NewFileSystemError, ErrFileSystemFailed},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.constructor("context", "cause", "suggestion", originalErr)

			if err.Type != test.expectedType {
				t.Errorf("%s created error with type %v, want %v", test.name, err.Type, test.expectedType)
			}

			if err.Context != "context" {
				t.Errorf("%s created error with context %q, want %q", test.name, err.Context, "context")
			}

			if err.Cause != "cause" {
				t.Errorf("%s created error with cause %q, want %q", test.name, err.Cause, "cause")
			}

			if err.Suggestion != "suggestion" {
				t.Errorf("%s created error with suggestion %q, want %q", test.name, err.Suggestion, "suggestion")
			}

			if err.OriginalErr != originalErr {
				t.Errorf("%s created error with originalErr %v, want %v", test.name, err.OriginalErr, originalErr)
			}
		})
	}
}

func TestGetOSStandardLogDir(t *testing.T) {
	t.Run("environment variable override", func(t *testing.T) {
		testDir := "/custom/log/dir"
		t.Setenv("BAKEKIT_LOG_DIR", testDir)

		result, err := getOSStandardLogDir()
		if err != nil {
			t.Fatalf("getOSStandardLogDir() failed: %v", err)
		}

		if result != testDir {
			t.Errorf("getOSStandardLogDir() = %q, want %q", result, testDir)
		}
	})

	t.Run("platform-specific directories", func(t *testing.T) {
		t.Setenv("BAKEKIT_LOG_DIR", "")

		result, err := getOSStandardLogDir()
		if err != nil {
			t.Fatalf("getOSStandardLogDir() failed: %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		var expectedPath string

		switch runtime.GOOS {
		case "darwin":
			expectedPath = filepath.Join(homeDir, "Library", "Logs", "Bakekit")
		case "linux", "freebsd", "openbsd", "netbsd":
			expectedPath = filepath.Join(homeDir, ".local", "share", "bakekit", "logs")
		case "windows":
			appDataDir := os.Getenv("APPDATA")
			if appDataDir == "" {
				expectedPath = filepath.Join(homeDir, "AppData", "Roaming", "Bakekit", "logs")
			} else {
				expectedPath = filepath.Join(appDataDir, "Bakekit", "logs")
			}
		default:
			expectedPath = filepath.Join(homeDir, ".bakekit", "logs")
		}

		if result != expectedPath {
			t.Errorf("getOSStandardLogDir() = %q, want %q", result, expectedPath)
		}
	})
}

func TestCreateLogDirectoryWithFallback(t *testing.T) {
	t.Run("successful standard directory creation", func(t *testing.T) {
		logDir := filepath.Join(t.TempDir(), "logs")
		t.Setenv("BAKEKIT_LOG_DIR", logDir)

		result, fallbackUsed, err := createLogDirectoryWithFallback()
		if err != nil {
			t.Fatalf("createLogDirectoryWithFallback() failed: %v", err)
		}

		if fallbackUsed {
			t.Error("createLogDirectoryWithFallback() should not use fallback for accessible directory")
		}

		if result != logDir {
			t.Errorf("createLogDirectoryWithFallback() = %q, want %q", result, logDir)
		}

		if _, err := os.Stat(logDir); os.IsNotExist(err) {
			t.Error("Log directory was not created")
		}
	})
}

func TestCheckLogRotation(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	t.Run("no rotation needed for small file", func(t *testing.T) {
		content := strings.Repeat("small log entry\n", 10)
		if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		if err := checkLogRotation(logPath); err != nil {
			t.Errorf("checkLogRotation() failed: %v", err)
		}

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Error("Original log file should still exist")
		}
	})

	t.Run("rotation needed for large file", func(t *testing.T) {
		content := strings.Repeat("large log entry that takes up space\n", 300000) // ~10MB
		if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create large test file: %v", err)
		}

		if err := checkLogRotation(logPath); err != nil {
			t.Errorf("checkLogRotation() failed: %v", err)
		}

		rotatedPath := logPath + ".1"
		if _, err := os.Stat(rotatedPath); os.IsNotExist(err) {
			t.Error("Rotated log file should exist")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		nonExistentPath := filepath.Join(tempDir, "non-existent.log")
		if err := checkLogRotation(nonExistentPath); err != nil {
			t.Errorf("checkLogRotation() should not fail for non-existent file: %v", err)
		}
	})
}

func TestRotateLogFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	testFiles := []string{
		logPath,
		logPath + ".1",
		logPath + ".2",
		logPath + ".3",
		logPath + ".4",
	}

	for i, file := range testFiles {
		content := fmt.Sprintf("Log file content %d\n", i)
		if err := os.WriteFile(file, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file %s: %v", file, err)
		}
	}

	if err := rotateLogFile(logPath); err != nil {
		t.Fatalf("rotateLogFile() failed: %v", err)
	}

	t.Run("current log moved to .1", func(t *testing.T) {
		content, err := os.ReadFile(logPath + ".1")
		if err != nil {
			t.Fatalf("Failed to read rotated file: %v", err)
		}
		if string(content) != "Log file content 0\n" {
			t.Errorf("Rotated file content = %q, want %q", string(content), "Log file content 0\n")
		}
	})

	t.Run("files rotated correctly", func(t *testing.T) {
		for i := 2; i <= 4; i++ {
			expectedContent := fmt.Sprintf("Log file content %d\n", i-1)
			content, err := os.ReadFile(fmt.Sprintf("%s.%d", logPath, i))
			if err != nil {
				t.Fatalf("Failed to read rotated file .%d: %v", i, err)
			}
			if string(content) != expectedContent {
				t.Errorf("Rotated file .%d content = %q, want %q", i, string(content), expectedContent)
			}
		}
	})

	t.Run("oldest file removed", func(t *testing.T) {
		if _, err := os.Stat(logPath + ".5"); !os.IsNotExist(err) {
			t.Error("Oldest log file should be removed")
		}
	})

	t.Run("original log file removed", func(t *testing.T) {
		if _, err := os.Stat(logPath); !os.IsNotExist(err) {
			t.Error("Original log file should be moved")
		}
	})
}

func TestCreateLogFileWithOSStandardPaths(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	t.Setenv("BAKEKIT_LOG_DIR", logDir)

	logFile, err := createLogFile()
	if err != nil {
		t.Fatalf("createLogFile() failed: %v", err)
	}
	defer logFile.Close()

	expectedPath := filepath.Join(logDir, "bakekit.log")
	if logFile.Name() != expectedPath {
		t.Errorf("createLogFile() created file at %q, want %q", logFile.Name(), expectedPath)
	}

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}
