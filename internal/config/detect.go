package config

import (
	"os"
	"path/filepath"
)

type Detection struct {
	Language string
	Manifest string
	Install  string
	Dev      string
	Ports    []int
}

// Detect inspects the project directory and suggests a manifest, the
// install and dev commands, and the port the dev server listens on.
func Detect(projectDir string) Detection {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(projectDir, name))
		return err == nil
	}

	checks := []struct {
		file     string
		language string
		install  string
		dev      string
		ports    []int
	}{
		{"package.json", "node", "npm install", "npm run dev", []int{3000}},
		{"requirements.txt", "python", "pip install -r requirements.txt", "python -m http.server 8000", []int{8000}},
		{"pyproject.toml", "python", "pip install -e .", "python -m http.server 8000", []int{8000}},
		{"go.mod", "go", "go mod download", "go run .", []int{8080}},
	}

	var det Detection
	for _, c := range checks {
		if exists(c.file) {
			det = Detection{
				Language: c.language,
				Manifest: c.file,
				Install:  c.install,
				Dev:      c.dev,
				Ports:    c.ports,
			}
			break
		}
	}

	if det.Language == "" {
		return Detection{
			Language: "unknown",
			Manifest: DefaultManifest,
			Install:  DefaultInstall,
			Dev:      DefaultDev,
		}
	}

	if det.Language == "node" {
		// Lockfiles pick the package manager.
		switch {
		case exists("pnpm-lock.yaml"):
			det.Install, det.Dev = "pnpm install", "pnpm dev"
		case exists("yarn.lock"):
			det.Install, det.Dev = "yarn install", "yarn dev"
		case exists("bun.lockb"):
			det.Install, det.Dev = "bun install", "bun run dev"
		}

		for _, f := range []string{"vite.config.ts", "vite.config.js", "vite.config.mjs"} {
			if exists(f) {
				det.Ports = []int{5173}
				break
			}
		}
	}

	return det
}

// Apply copies detected values into cfg.
func (d Detection) Apply(cfg *Config) {
	cfg.Language = d.Language
	cfg.Commands.Manifest = d.Manifest
	cfg.Commands.Install = d.Install
	cfg.Commands.Dev = d.Dev
	cfg.Runtime.Ports = d.Ports
}
