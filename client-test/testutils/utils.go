package testutils

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/mockserver"
)

var (
	Logger     = common.InitLogger().WithName("[Client-TEST]")
	ServerAddr = ""
	MockPort   = 6390
)

func GenerateKey(cmd string) string {
	timestamp := time.Now().UnixMilli()
	key := fmt.Sprintf("client_test_%s_%d", cmd, timestamp)
	return key
}

func Check(cond bool, format string, args ...any) {
	if !cond {
		msg := fmt.Sprintf(format, args...)
		Logger.Info("Check failed", "Reason", msg)
		panic(msg)
	}
}

func Must(err error, msg string) {
	if err != nil {
		Logger.Error(err, msg)
		panic(err)
	}
}

// BuildAndRunMockSrv builds respcli and runs `respcli serve` on MockPort.
// It returns the RESP address once the server answers PING.
func BuildAndRunMockSrv() string {
	_, b, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(b), "../..")
	binary := filepath.Join(root, "bin/respcli")
	cmd := exec.Command("go", "build", "-o", binary, "./cmd/respcli")
	cmd.Dir = root
	output, err := cmd.CombinedOutput()
	if err != nil {
		fmt.Printf("Error executing go build: %v\n%s\n", err, output)
		panic(err)
	}
	Logger.Info("Running respcli mock server", "RunCmd", binary)
	cmdArg := []string{
		"serve",
		fmt.Sprintf("--port=%d", MockPort),
		"--service-port=0",
	}
	cmd = exec.Command(binary, cmdArg...)
	logDir := filepath.Join(filepath.Dir(b), "../logs/")
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		fmt.Printf("Error creating log dir: %v\n", err)
		panic(err)
	}
	logFile, openErr := os.Create(filepath.Join(logDir, "respcli-mock-srv.log"))
	if openErr != nil {
		fmt.Printf("Error opening log file: %v\n", openErr)
		panic(openErr)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if startErr := cmd.Start(); startErr != nil {
		fmt.Printf("Error starting command: %v\n", startErr)
		panic(startErr)
	}
	Logger.Info("Started command", "PID", cmd.Process.Pid)

	addr := fmt.Sprintf("127.0.0.1:%d", MockPort)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	Must(mockserver.WaitReady(ctx, addr), "mock server did not become ready")
	return addr
}

// ResolveAddr returns ServerAddr, starting a mock server when it is empty.
func ResolveAddr() string {
	if ServerAddr != "" {
		return ServerAddr
	}
	return BuildAndRunMockSrv()
}
