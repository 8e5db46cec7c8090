package inventory

import (
	"context"
	"errors"
	"testing"

	containertypes "github.com/docker/docker/api/types/container"
	volumetypes "github.com/docker/docker/api/types/volume"
	"github.com/rs/zerolog"

	vigilerr "github.com/halcyonops/vigil/internal/errors"
	"github.com/halcyonops/vigil/internal/models"
)

type fakeDocker struct {
	containerListFn    func(ctx context.Context, opts containertypes.ListOptions) ([]containertypes.Summary, error)
	containerInspectFn func(ctx context.Context, id string) (containertypes.InspectResponse, error)
	volumeListFn       func(ctx context.Context, opts volumetypes.ListOptions) (volumetypes.ListResponse, error)
}

func (f *fakeDocker) ContainerList(ctx context.Context, opts containertypes.ListOptions) ([]containertypes.Summary, error) {
	if f.containerListFn == nil {
		return nil, errors.New("unexpected ContainerList call")
	}
	return f.containerListFn(ctx, opts)
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, id string) (containertypes.InspectResponse, error) {
	if f.containerInspectFn == nil {
		return containertypes.InspectResponse{}, errors.New("unexpected ContainerInspect call")
	}
	return f.containerInspectFn(ctx, id)
}

func (f *fakeDocker) VolumeList(ctx context.Context, opts volumetypes.ListOptions) (volumetypes.ListResponse, error) {
	if f.volumeListFn == nil {
		return volumetypes.ListResponse{}, errors.New("unexpected VolumeList call")
	}
	return f.volumeListFn(ctx, opts)
}

func (f *fakeDocker) Close() error { return nil }

type fakeCertScanner struct {
	entities []models.Entity
	err      error
}

func (f *fakeCertScanner) Scan(ctx context.Context) ([]models.Entity, error) {
	return f.entities, f.err
}

type fakeDomainLister struct {
	domains []string
	err     error
}

func (f *fakeDomainLister) Domains(ctx context.Context) ([]string, error) {
	return f.domains, f.err
}

func inspectResponse(exitCode int, health string, restarts int) containertypes.InspectResponse {
	state := &containertypes.State{ExitCode: exitCode}
	if health != "" {
		state.Health = &containertypes.Health{Status: health}
	}
	return containertypes.InspectResponse{
		ContainerJSONBase: &containertypes.ContainerJSONBase{
			State:        state,
			RestartCount: restarts,
		},
	}
}

func TestListContainers(t *testing.T) {
	docker := &fakeDocker{
		containerListFn: func(_ context.Context, opts containertypes.ListOptions) ([]containertypes.Summary, error) {
			if !opts.All {
				t.Fatal("expected All: true to include stopped containers")
			}
			return []containertypes.Summary{
				{ID: "c1", Names: []string{"/web"}, State: "running", Image: "nginx:1.27"},
				{ID: "c2", Names: []string{"/worker"}, State: "exited", Image: "worker:2"},
			}, nil
		},
		containerInspectFn: func(_ context.Context, id string) (containertypes.InspectResponse, error) {
			if id == "c1" {
				return inspectResponse(0, "healthy", 0), nil
			}
			return inspectResponse(137, "", 3), nil
		},
	}

	inv := New(Config{Docker: docker, Logger: zerolog.Nop()})
	entities, err := inv.List(context.Background(), models.KindContainer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}

	if entities[0].Name != "web" || entities[0].Meta(models.MetaHealth) != "healthy" {
		t.Errorf("unexpected first entity: %+v", entities[0])
	}
	if entities[1].State != "exited" || entities[1].Meta(models.MetaExitCode) != "137" {
		t.Errorf("unexpected second entity: %+v", entities[1])
	}
}

func TestListContainersInspectFailureKeepsListData(t *testing.T) {
	docker := &fakeDocker{
		containerListFn: func(_ context.Context, _ containertypes.ListOptions) ([]containertypes.Summary, error) {
			return []containertypes.Summary{{ID: "c1", Names: []string{"/web"}, State: "running"}}, nil
		},
		containerInspectFn: func(_ context.Context, _ string) (containertypes.InspectResponse, error) {
			return containertypes.InspectResponse{}, errors.New("gone")
		},
	}

	inv := New(Config{Docker: docker, Logger: zerolog.Nop()})
	entities, err := inv.List(context.Background(), models.KindContainer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 1 || entities[0].ID != "c1" {
		t.Fatalf("expected the listed container to survive inspect failure, got %+v", entities)
	}
}

func TestListVolumesCountsRefs(t *testing.T) {
	docker := &fakeDocker{
		volumeListFn: func(_ context.Context, _ volumetypes.ListOptions) (volumetypes.ListResponse, error) {
			return volumetypes.ListResponse{Volumes: []*volumetypes.Volume{
				{Name: "appdata", Driver: "local", Mountpoint: "/var/lib/docker/volumes/appdata"},
				{Name: "scratch", Driver: "local"},
			}}, nil
		},
		containerListFn: func(_ context.Context, _ containertypes.ListOptions) ([]containertypes.Summary, error) {
			return []containertypes.Summary{
				{ID: "c1", Mounts: []containertypes.MountPoint{{Name: "appdata"}}},
				{ID: "c2", Mounts: []containertypes.MountPoint{{Name: "appdata"}}},
			}, nil
		},
	}

	inv := New(Config{Docker: docker, Logger: zerolog.Nop()})
	entities, err := inv.List(context.Background(), models.KindVolume)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 volumes, got %d", len(entities))
	}
	if entities[0].Meta(models.MetaRefCount) != "2" {
		t.Errorf("appdata ref count = %s, want 2", entities[0].Meta(models.MetaRefCount))
	}
	if entities[1].Meta(models.MetaRefCount) != "0" {
		t.Errorf("scratch ref count = %s, want 0", entities[1].Meta(models.MetaRefCount))
	}
}

func TestBackendFailureIsScopedToKind(t *testing.T) {
	docker := &fakeDocker{
		containerListFn: func(_ context.Context, _ containertypes.ListOptions) ([]containertypes.Summary, error) {
			return nil, errors.New("socket refused")
		},
	}
	inv := New(Config{
		Docker:  docker,
		Domains: &fakeDomainLister{domains: []string{"app.example"}},
		Logger:  zerolog.Nop(),
	})

	_, err := inv.List(context.Background(), models.KindContainer)
	if !vigilerr.IsBackendUnavailable(err) {
		t.Fatalf("expected backend-unavailable error, got %v", err)
	}

	// Other kinds keep working against their own backends.
	entities, err := inv.List(context.Background(), models.KindDomain)
	if err != nil {
		t.Fatalf("domain listing should not be affected: %v", err)
	}
	if len(entities) != 1 || entities[0].ID != "app.example" {
		t.Fatalf("unexpected domain entities: %+v", entities)
	}
}

func TestNilBackendsReportUnavailable(t *testing.T) {
	inv := New(Config{Logger: zerolog.Nop()})
	for _, kind := range models.AllKinds {
		if _, err := inv.List(context.Background(), kind); !vigilerr.IsBackendUnavailable(err) {
			t.Errorf("kind %s: expected backend-unavailable, got %v", kind, err)
		}
	}
}

func TestCertScanWrapsError(t *testing.T) {
	inv := New(Config{Certs: &fakeCertScanner{err: errors.New("no dir")}, Logger: zerolog.Nop()})
	if _, err := inv.List(context.Background(), models.KindCertificate); !vigilerr.IsBackendUnavailable(err) {
		t.Fatalf("expected backend-unavailable, got %v", err)
	}
}
