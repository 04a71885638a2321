// Package main is a standalone health probe for the multiroom audio
// backend, usable as a container HEALTHCHECK or from the command line.
// It verifies the working directories, the player binaries and the HTTP
// health endpoint, and exits non-zero when anything required is broken.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/soundmesh/multiroom-audio-backend/internal/config"
)

type check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Fatal  bool   `json:"-"`
}

func main() {
	jsonOut := flag.Bool("json", false, "Output results as JSON")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP probe timeout")
	flag.Parse()

	settings := config.LoadSettings()

	checks := []check{
		dirWritable("config dir", settings.ConfigDir, true),
		dirWritable("log dir", settings.LogDir, true),
		binaryPresent("squeezelite"),
		binaryPresent("sendspin"),
		httpHealthy(settings.Port, *timeout),
	}

	failed := false
	for _, c := range checks {
		if !c.OK && c.Fatal {
			failed = true
		}
	}

	if *jsonOut {
		json.NewEncoder(os.Stdout).Encode(map[string]any{
			"healthy": !failed,
			"checks":  checks,
		})
	} else {
		for _, c := range checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
				if !c.Fatal {
					mark = "warn"
				}
			}
			fmt.Printf("%-14s %s  %s\n", c.Name, mark, c.Detail)
		}
	}

	if failed {
		os.Exit(1)
	}
}

func dirWritable(name, dir string, fatal bool) check {
	probe := filepath.Join(dir, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return check{Name: name, OK: false, Detail: err.Error(), Fatal: fatal}
	}
	os.Remove(probe)
	return check{Name: name, OK: true, Detail: dir, Fatal: fatal}
}

// binaryPresent is advisory: a host may run only one of the backends.
func binaryPresent(binary string) check {
	path, err := exec.LookPath(binary)
	if err != nil {
		return check{Name: binary, OK: false, Detail: "not found on PATH"}
	}
	return check{Name: binary, OK: true, Detail: path}
}

func httpHealthy(port int, timeout time.Duration) check {
	client := http.Client{Timeout: timeout}
	url := "http://localhost:" + strconv.Itoa(port) + "/health"

	resp, err := client.Get(url)
	if err != nil {
		return check{Name: "http", OK: false, Detail: err.Error(), Fatal: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return check{Name: "http", OK: false, Detail: resp.Status, Fatal: true}
	}
	return check{Name: "http", OK: true, Detail: url, Fatal: true}
}
