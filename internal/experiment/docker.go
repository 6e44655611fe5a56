package experiment

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"

	"github.com/runlab/runlab/internal/resources"
	"github.com/runlab/runlab/internal/revcache"
	"github.com/runlab/runlab/internal/runner"
)

func init() {
	Register("docker", func() Executor { return &dockerExecutor{images: revcache.New()} })
}

// dockerExecutor runs a spec inside a container. CPU-time and core
// limits are applied as ulimits on the container init process, memory
// and CPU bandwidth through the host config, and the wall-clock bound
// is enforced from outside by stopping the container.
type dockerExecutor struct {
	client     *client.Client
	clientOnce sync.Once
	clientErr  error

	// images memoizes inspect-or-pull per image reference so parallel
	// runs of the same image trigger a single pull.
	images *revcache.Cache
}

func (e *dockerExecutor) getClient() (*client.Client, error) {
	e.clientOnce.Do(func() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			e.clientErr = err
			return
		}
		e.client = cli
	})
	return e.client, e.clientErr
}

func (e *dockerExecutor) Execute(ctx context.Context, spec RunSpec) (runner.Result, error) {
	cli, err := e.getClient()
	if err != nil {
		return runner.Result{}, fmt.Errorf("create docker client: %w", err)
	}

	if err := e.ensureImageOnce(ctx, cli, spec.Image); err != nil {
		return runner.Result{}, err
	}

	containerCfg, hostCfg, err := buildContainerConfigs(spec)
	if err != nil {
		return runner.Result{}, err
	}

	createResp, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return runner.Result{}, fmt.Errorf("container create: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		_ = cli.ContainerRemove(context.Background(), containerID, types.ContainerRemoveOptions{Force: true})
	}()

	started := time.Now()
	if err := cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return runner.Result{}, fmt.Errorf("container start: %w", err)
	}

	logDone, err := streamContainerLogs(cli, containerID, spec)
	if err != nil {
		return runner.Result{}, err
	}

	statusCh, errCh := cli.ContainerWait(context.Background(), containerID, container.WaitConditionNextExit)

	var wallTimer <-chan time.Time
	wallLimit := runner.EffectiveWallLimit(spec.CPUTime, spec.WallTime)
	if wallLimit > 0 {
		timer := time.NewTimer(wallLimit)
		defer timer.Stop()
		wallTimer = timer.C
	}

	var result runner.Result
	stopped := false
	ctxDone := ctx.Done()
	for {
		select {
		case err := <-errCh:
			<-logDone
			return runner.Result{}, fmt.Errorf("container wait: %w", err)
		case resp := <-statusCh:
			<-logDone
			result.ExitStatus = decodeContainerStatus(resp.StatusCode)
			result.WallClockTime = time.Since(started)
			return result, nil
		case <-wallTimer:
			wallTimer = nil
			result.WallClockTimeExceeded = true
			if !stopped {
				stopped = true
				stopContainer(cli, containerID, spec.KillDelay)
			}
		case <-ctxDone:
			ctxDone = nil
			if !stopped {
				stopped = true
				stopContainer(cli, containerID, spec.KillDelay)
			}
		}
	}
}

func (e *dockerExecutor) ensureImageOnce(ctx context.Context, cli *client.Client, imageName string) error {
	repo, tag := splitImageRef(imageName)
	_, err := e.images.Get(revcache.Key{Repo: repo, Rev: tag}, func() (string, error) {
		return ensureImage(ctx, cli, imageName)
	})
	return err
}

func splitImageRef(ref string) (repo, tag string) {
	if i := strings.LastIndex(ref, ":"); i > 0 && !strings.Contains(ref[i+1:], "/") {
		return ref[:i], ref[i+1:]
	}
	return ref, "latest"
}

// ensureImage returns the local image ID, pulling the image when it is
// not present.
func ensureImage(ctx context.Context, cli *client.Client, imageName string) (string, error) {
	inspect, _, err := cli.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return inspect.ID, nil
	}
	if !client.IsErrNotFound(err) {
		return "", fmt.Errorf("inspect image: %w", err)
	}
	reader, err := cli.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)

	inspect, _, err = cli.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		return "", fmt.Errorf("inspect image after pull: %w", err)
	}
	return inspect.ID, nil
}

// decodeContainerStatus maps the container exit code onto the same
// convention the process executor uses: codes above 128 report death by
// signal and become the negated signal number.
func decodeContainerStatus(code int64) int {
	if code > 128 && code < 256 {
		return -int(code - 128)
	}
	return int(code)
}

func stopContainer(cli *client.Client, containerID string, killDelay time.Duration) {
	if killDelay <= 0 {
		killDelay = 5 * time.Second
	}
	sec := int(killDelay.Seconds())
	if sec < 1 {
		sec = 1
	}
	opts := container.StopOptions{Timeout: &sec}
	if err := cli.ContainerStop(context.Background(), containerID, opts); err != nil && !client.IsErrNotFound(err) {
		_ = cli.ContainerKill(context.Background(), containerID, "SIGKILL")
	}
}

// streamContainerLogs copies the container's demultiplexed output into
// the spec's stdout/stderr destinations. The returned channel closes
// once the log stream drains.
func streamContainerLogs(cli *client.Client, containerID string, spec RunSpec) (<-chan struct{}, error) {
	stdout, stdoutClose, err := openLogSink(spec.Stdout, os.Stdout)
	if err != nil {
		return nil, err
	}
	stderr, stderrClose, err := openLogSink(spec.Stderr, os.Stderr)
	if err != nil {
		stdoutClose()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stdoutClose()
		defer stderrClose()
		reader, err := cli.ContainerLogs(context.Background(), containerID, types.ContainerLogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Tail:       "all",
		})
		if err != nil {
			return
		}
		defer reader.Close()
		_, _ = stdcopy.StdCopy(stdout, stderr, reader)
	}()
	return done, nil
}

func openLogSink(path string, inherited *os.File) (io.Writer, func(), error) {
	if path == "" {
		return inherited, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log sink %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func buildContainerConfigs(spec RunSpec) (*container.Config, *container.HostConfig, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)

	var cmdSlice []string
	if len(spec.Command) > 0 {
		cmdSlice = append([]string(nil), spec.Command...)
	}

	config := &container.Config{
		Image: spec.Image,
		Env:   env,
		Cmd:   strslice.StrSlice(cmdSlice),
	}

	host := &container.HostConfig{}
	if spec.MemoryBytes > 0 {
		host.Resources.Memory = spec.MemoryBytes
	}
	if spec.CPUs != "" {
		nano, err := resources.ParseCPU(spec.CPUs)
		if err != nil {
			return nil, nil, err
		}
		host.Resources.NanoCPUs = nano
	}
	if spec.CPUTime > 0 {
		soft := int64(math.Ceil(spec.CPUTime.Seconds()))
		host.Resources.Ulimits = append(host.Resources.Ulimits, &units.Ulimit{
			Name: "cpu",
			Soft: soft,
			Hard: soft + 5,
		})
	}
	host.Resources.Ulimits = append(host.Resources.Ulimits, &units.Ulimit{Name: "core", Soft: 0, Hard: 0})
	return config, host, nil
}
