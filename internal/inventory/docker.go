package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	volumetypes "github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	vigilerr "github.com/halcyonops/vigil/internal/errors"
	"github.com/halcyonops/vigil/internal/models"
)

var errNotConfigured = errors.New("backend not configured")

// DockerAPI is the subset of the Docker client the inventory needs.
type DockerAPI interface {
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]containertypes.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (containertypes.InspectResponse, error)
	VolumeList(ctx context.Context, options volumetypes.ListOptions) (volumetypes.ListResponse, error)
	Close() error
}

// ConnectDocker opens a Docker client against host, or the environment
// default when host is empty.
func ConnectDocker(host string) (DockerAPI, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if strings.TrimSpace(host) != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

func (inv *Inventory) listContainers(ctx context.Context) ([]models.Entity, error) {
	list, err := inv.docker.ContainerList(ctx, containertypes.ListOptions{All: true})
	if err != nil {
		return nil, vigilerr.WrapBackend("list_containers", models.KindContainer, err)
	}

	entities := make([]models.Entity, 0, len(list))
	for _, summary := range list {
		entity := models.Entity{
			Kind:  models.KindContainer,
			ID:    summary.ID,
			Name:  trimLeadingSlash(summary.Names),
			State: summary.State,
			Metadata: map[string]string{
				models.MetaImage: summary.Image,
			},
		}

		// Health status and exit code only surface through inspect. A
		// container removed between list and inspect is not an anomaly;
		// it is simply absent from this snapshot.
		inspect, err := inv.docker.ContainerInspect(ctx, summary.ID)
		if err != nil {
			inv.logger.Warn().
				Str("container", entity.Name).
				Err(err).
				Msg("Failed to inspect container, reporting list data only")
			entities = append(entities, entity)
			continue
		}

		if inspect.State != nil {
			entity.Metadata[models.MetaExitCode] = strconv.Itoa(inspect.State.ExitCode)
			if inspect.State.Health != nil {
				entity.Metadata[models.MetaHealth] = inspect.State.Health.Status
			}
		}
		entity.Metadata[models.MetaRestartCount] = strconv.Itoa(inspect.RestartCount)

		entities = append(entities, entity)
	}

	return entities, nil
}

func (inv *Inventory) listVolumes(ctx context.Context) ([]models.Entity, error) {
	resp, err := inv.docker.VolumeList(ctx, volumetypes.ListOptions{})
	if err != nil {
		return nil, vigilerr.WrapBackend("list_volumes", models.KindVolume, err)
	}

	refs, err := inv.volumeRefCounts(ctx)
	if err != nil {
		return nil, vigilerr.WrapBackend("list_volumes", models.KindVolume, err)
	}

	entities := make([]models.Entity, 0, len(resp.Volumes))
	for _, vol := range resp.Volumes {
		if vol == nil {
			continue
		}
		entities = append(entities, models.Entity{
			Kind:  models.KindVolume,
			ID:    vol.Name,
			Name:  vol.Name,
			State: "present",
			Metadata: map[string]string{
				models.MetaRefCount:   strconv.Itoa(refs[vol.Name]),
				models.MetaDriver:     vol.Driver,
				models.MetaMountpoint: vol.Mountpoint,
			},
		})
	}

	return entities, nil
}

// volumeRefCounts counts how many containers (running or not) mount each
// named volume. Stopped containers still pin their volumes, so All is set.
func (inv *Inventory) volumeRefCounts(ctx context.Context) (map[string]int, error) {
	list, err := inv.docker.ContainerList(ctx, containertypes.ListOptions{All: true})
	if err != nil {
		return nil, err
	}

	refs := make(map[string]int)
	for _, summary := range list {
		for _, mount := range summary.Mounts {
			if mount.Name != "" {
				refs[mount.Name]++
			}
		}
	}
	return refs, nil
}

func trimLeadingSlash(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
