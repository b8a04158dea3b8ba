package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := &Config{
		Version:  "1",
		Project:  "test-project",
		Language: "node",
		Runtime: Runtime{
			Backend: BackendDocker,
			Image:   "node:22",
			Ports:   []int{5173},
		},
		Commands: Commands{
			Manifest: "package.json",
			Install:  "pnpm install",
			Dev:      "pnpm dev --host 0.0.0.0",
		},
		Terminal: Terminal{MaxLines: 200},
		Ignore:   []string{"dist"},
	}

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Project != "test-project" {
		t.Errorf("Project = %q, want %q", loaded.Project, "test-project")
	}
	if loaded.Runtime.Backend != BackendDocker {
		t.Errorf("Backend = %q, want %q", loaded.Runtime.Backend, BackendDocker)
	}
	if len(loaded.Runtime.Ports) != 1 || loaded.Runtime.Ports[0] != 5173 {
		t.Errorf("Ports = %v, want [5173]", loaded.Runtime.Ports)
	}
	if loaded.Commands.Dev != "pnpm dev --host 0.0.0.0" {
		t.Errorf("Dev = %q", loaded.Commands.Dev)
	}
	if loaded.Terminal.MaxLines != 200 {
		t.Errorf("MaxLines = %d, want 200", loaded.Terminal.MaxLines)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load should fail without a config file")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("Exists should be false before init")
	}

	cfg := &Config{Version: "1", Project: "test"}
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !Exists(dir) {
		t.Error("Exists should be true after save")
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	if cfg.Runtime.Backend != BackendLocal {
		t.Errorf("Backend = %q, want %q", cfg.Runtime.Backend, BackendLocal)
	}
	if cfg.Runtime.Image != DefaultImage {
		t.Errorf("Image = %q", cfg.Runtime.Image)
	}
	if cfg.Commands.Manifest != "package.json" || cfg.Commands.Install != "npm install" || cfg.Commands.Dev != "npm run dev" {
		t.Errorf("Commands = %+v", cfg.Commands)
	}
	if cfg.Terminal.MaxLines != 100 {
		t.Errorf("MaxLines = %d, want 100", cfg.Terminal.MaxLines)
	}

	kept := Config{Commands: Commands{Dev: "vite"}}.WithDefaults()
	if kept.Commands.Dev != "vite" {
		t.Errorf("WithDefaults overwrote Dev: %q", kept.Commands.Dev)
	}
}

func TestCommands(t *testing.T) {
	cfg := Config{Commands: Commands{
		Install: "npm ci --prefer-offline",
		Dev:     `sh -c "vite --host 0.0.0.0"`,
	}}

	install, err := cfg.InstallCommand()
	if err != nil {
		t.Fatalf("InstallCommand: %v", err)
	}
	if want := []string{"npm", "ci", "--prefer-offline"}; !reflect.DeepEqual(install, want) {
		t.Errorf("install = %q, want %q", install, want)
	}

	dev, err := cfg.DevCommand()
	if err != nil {
		t.Fatalf("DevCommand: %v", err)
	}
	if want := []string{"sh", "-c", "vite --host 0.0.0.0"}; !reflect.DeepEqual(dev, want) {
		t.Errorf("dev = %q, want %q", dev, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}.WithDefaults(), false},
		{"docker", Config{Runtime: Runtime{Backend: BackendDocker}}.WithDefaults(), false},
		{"unknown backend", Config{Runtime: Runtime{Backend: "firecracker"}}.WithDefaults(), true},
		{"unterminated quote", Config{Commands: Commands{Dev: `npm run "dev`}}.WithDefaults(), true},
		{"blank install", Config{Commands: Commands{Install: "   "}}.WithDefaults(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkDirPath(t *testing.T) {
	project := "/src/app"
	tests := []struct {
		workDir string
		want    string
	}{
		{"", filepath.Join(project, Dir, WorkDir)},
		{"build/sandbox", filepath.Join(project, "build/sandbox")},
		{"/tmp/sandbox", "/tmp/sandbox"},
	}
	for _, tt := range tests {
		cfg := Config{Runtime: Runtime{WorkDir: tt.workDir}}
		if got := cfg.WorkDirPath(project); got != tt.want {
			t.Errorf("WorkDirPath(%q) = %q, want %q", tt.workDir, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		files       []string
		wantLang    string
		wantInstall string
		wantPorts   []int
	}{
		{"go project", []string{"go.mod"}, "go", "go mod download", []int{8080}},
		{"node project", []string{"package.json"}, "node", "npm install", []int{3000}},
		{"vite project", []string{"package.json", "vite.config.ts"}, "node", "npm install", []int{5173}},
		{"pnpm project", []string{"package.json", "pnpm-lock.yaml"}, "node", "pnpm install", []int{3000}},
		{"yarn project", []string{"package.json", "yarn.lock"}, "node", "yarn install", []int{3000}},
		{"python project", []string{"requirements.txt"}, "python", "pip install -r requirements.txt", []int{8000}},
		{"unknown project", nil, "unknown", "npm install", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644)
			}
			d := Detect(dir)
			if d.Language != tt.wantLang {
				t.Errorf("Language = %q, want %q", d.Language, tt.wantLang)
			}
			if d.Install != tt.wantInstall {
				t.Errorf("Install = %q, want %q", d.Install, tt.wantInstall)
			}
			if !reflect.DeepEqual(d.Ports, tt.wantPorts) {
				t.Errorf("Ports = %v, want %v", d.Ports, tt.wantPorts)
			}
		})
	}
}

func TestDetectionApply(t *testing.T) {
	var cfg Config
	Detection{Language: "node", Manifest: "package.json", Install: "yarn install", Dev: "yarn dev", Ports: []int{5173}}.Apply(&cfg)
	if cfg.Commands.Install != "yarn install" || cfg.Runtime.Ports[0] != 5173 || cfg.Language != "node" {
		t.Errorf("Apply produced %+v", cfg)
	}
}
