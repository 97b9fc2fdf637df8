package config

import (
	"path/filepath"
	"testing"

	"github.com/rescale/rescale-qr/internal/models"
)

func TestLoadServers_CSV(t *testing.T) {
	path := writeFile(t, "servers.csv",
		"name,address,port,ae_title,checked,scheme,path_prefix\n"+
			"PACS1,10.0.0.5,104,ARCHIVE,true,,\n"+
			"PACS2,pacs2.example.org,8042,ORTHANC,false,https,/dicom-web\n"+
			"\n"+
			"PACS3,10.0.0.7,11112,MINI,,http,\n")

	servers, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers() error = %v", err)
	}
	if len(servers) != 3 {
		t.Fatalf("got %d servers, want 3", len(servers))
	}

	if servers[0].Name != "PACS1" || servers[0].Port != 104 || !servers[0].Checked {
		t.Errorf("servers[0] = %+v", servers[0])
	}
	if servers[1].Checked {
		t.Error("PACS2 should be unchecked")
	}
	if servers[1].Scheme != "https" || servers[1].PathPrefix != "/dicom-web" {
		t.Errorf("servers[1] transport = %q %q", servers[1].Scheme, servers[1].PathPrefix)
	}
	if !servers[2].Checked {
		t.Error("empty checked column should default to true")
	}
}

func TestLoadServers_CSVSpreadsheetExport(t *testing.T) {
	path := writeFile(t, "servers.csv",
		"\uFEFFname,address,port,ae_title\r\n"+
			"PACS\u200B1, 10.0.0.5 ,104,ARCHIVE\r\n")

	servers, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers() error = %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(servers))
	}
	if s := servers[0]; s.Name != "PACS1" || s.Address != "10.0.0.5" || !s.Checked {
		t.Errorf("server = %+v", s)
	}
}

func TestLoadServers_YAML(t *testing.T) {
	path := writeFile(t, "servers.yaml", `servers:
  - name: PACS1
    address: 10.0.0.5
    port: 104
    ae_title: ARCHIVE
    checked: true
  - name: PACS2
    address: pacs2.example.org
    port: 8042
    ae_title: ORTHANC
    calling_ae_title: SITEB
    checked: true
    scheme: https
`)

	servers, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers() error = %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[1].CallingAETitle != "SITEB" {
		t.Errorf("CallingAETitle = %q, want SITEB", servers[1].CallingAETitle)
	}
}

func TestLoadServers_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad port", "servers.csv", "name,address,port,ae_title\nA,10.0.0.1,abc,X\n"},
		{"port out of range", "servers.csv", "name,address,port,ae_title\nA,10.0.0.1,70000,X\n"},
		{"missing column", "servers.csv", "name,address,port\nA,10.0.0.1,104\n"},
		{"missing AE title", "servers.csv", "name,address,port,ae_title\nA,10.0.0.1,104,\n"},
		{"AE title too long", "servers.csv", "name,address,port,ae_title\nA,10.0.0.1,104,AE_TITLE_THAT_IS_LONG\n"},
		{"bad scheme", "servers.yaml", "servers:\n  - {name: A, address: 10.0.0.1, port: 104, ae_title: X, scheme: ftp}\n"},
		{"unknown extension", "servers.json", "[]"},
		{"duplicate name CSV", "servers.csv", "name,address,port,ae_title\nA,10.0.0.1,104,X\nA,10.0.0.2,104,Y\n"},
		{"duplicate name YAML", "servers.yaml", "servers:\n  - {name: A, address: 10.0.0.1, port: 104, ae_title: X}\n  - {name: A, address: 10.0.0.2, port: 104, ae_title: Y}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			if _, err := LoadServers(path); err == nil {
				t.Error("LoadServers() expected error")
			}
		})
	}
}

func TestSaveServers_RoundTrip(t *testing.T) {
	servers := []models.Server{
		{Name: "PACS1", Address: "10.0.0.5", Port: 104, CalledAETitle: "ARCHIVE", Checked: true},
		{Name: "PACS2", Address: "pacs2", Port: 8042, CalledAETitle: "ORTHANC", Scheme: "https", CallingAETitle: "SITEB"},
	}

	for _, ext := range []string{".csv", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "servers"+ext)
			if err := SaveServers(path, servers); err != nil {
				t.Fatalf("SaveServers() error = %v", err)
			}
			loaded, err := LoadServers(path)
			if err != nil {
				t.Fatalf("LoadServers() error = %v", err)
			}
			if len(loaded) != len(servers) {
				t.Fatalf("got %d servers, want %d", len(loaded), len(servers))
			}
			for i := range servers {
				if loaded[i] != servers[i] {
					t.Errorf("server %d = %+v, want %+v", i, loaded[i], servers[i])
				}
			}
		})
	}
}

func TestServerList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallingAETitle = "CALLER"
	cfg.StorageAETitle = "STORE"
	cfg.StoragePort = 4006

	list := NewServerList([]models.Server{
		{Name: "A", Address: "a", Port: 104, CalledAETitle: "AE_A", Checked: true},
		{Name: "B", Address: "b", Port: 104, CalledAETitle: "AE_B", Checked: false},
		{Name: "C", Address: "c", Port: 104, CalledAETitle: "AE_C", Checked: true},
	}, cfg)

	checked := list.CheckedServers()
	if len(checked) != 2 || checked[0].Name != "A" || checked[1].Name != "C" {
		t.Errorf("CheckedServers() = %v, want [A C]", checked)
	}
	if list.CallingAETitle() != "CALLER" {
		t.Errorf("CallingAETitle() = %q, want CALLER", list.CallingAETitle())
	}
	if ls := list.LocalStorage(); ls.StorageAETitle != "STORE" || ls.StoragePort != 4006 {
		t.Errorf("LocalStorage() = %+v", ls)
	}

	if err := list.SetChecked([]string{"B"}); err != nil {
		t.Fatalf("SetChecked() error = %v", err)
	}
	checked = list.CheckedServers()
	if len(checked) != 1 || checked[0].Name != "B" {
		t.Errorf("after SetChecked, CheckedServers() = %v, want [B]", checked)
	}

	if err := list.SetChecked([]string{"nope"}); err == nil {
		t.Error("SetChecked() with unknown name should fail")
	}

	if _, ok := list.Parameters("C"); !ok {
		t.Error("Parameters(C) not found")
	}
	if _, ok := list.Parameters("Z"); ok {
		t.Error("Parameters(Z) should not be found")
	}
}
