// Package memory 是 cloud 能力的进程内实现，用于本地开发（cloud.driver=memory）和测试。
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"foundryhost/pkg/cloud"

	"github.com/duke-git/lancet/v2/random"
)

// Cloud 同时实现全部 cloud 接口，状态可在测试中直接检查
type Cloud struct {
	mu sync.Mutex

	// ReadyAfter 任务在被 Describe 多少次后进入 RUNNING
	ReadyAfter int
	// FailStep 非空时对应操作返回错误，键为方法名，例如 "RunTask"
	FailStep map[string]error

	TaskDefs      map[string]cloud.TaskSpec
	Tasks         map[string]*memTask
	TargetGroups  map[string]map[string]bool // arn -> address set
	Rules         map[string]memRule
	Records       map[string]string // host -> target
	AccessPoints  map[string]memAccessPoint
	Files         map[string]int // userID -> file count
	Ownership     map[string][2]int64
	OwnershipLog  []string
	Buckets       map[string][]string // bucket -> object versions
	Users         map[string]string   // identity -> bucket
	Keys          map[string][]cloud.AccessKey
	Secrets       map[string]*cloud.Credentials
	PendingDelete map[string]*cloud.Credentials

	seq int
}

type memTask struct {
	defRef   string
	status   string
	address  string
	describe int
}

type memRule struct {
	targetGroup string
	host        string
	priority    int32
}

type memAccessPoint struct {
	userID string
	uid    int64
	gid    int64
}

func New() *Cloud {
	return &Cloud{
		ReadyAfter:    1,
		FailStep:      make(map[string]error),
		TaskDefs:      make(map[string]cloud.TaskSpec),
		Tasks:         make(map[string]*memTask),
		TargetGroups:  make(map[string]map[string]bool),
		Rules:         make(map[string]memRule),
		Records:       make(map[string]string),
		AccessPoints:  make(map[string]memAccessPoint),
		Files:         make(map[string]int),
		Ownership:     make(map[string][2]int64),
		Buckets:       make(map[string][]string),
		Users:         make(map[string]string),
		Keys:          make(map[string][]cloud.AccessKey),
		Secrets:       make(map[string]*cloud.Credentials),
		PendingDelete: make(map[string]*cloud.Credentials),
	}
}

// NewProvider 以同一个 Cloud 填充 Provider 的全部能力
func NewProvider(c *Cloud) *cloud.Provider {
	return &cloud.Provider{
		Compute:       c,
		LoadBalancer:  c,
		DNS:           c,
		FileSystem:    c,
		ObjectStorage: c,
		Identity:      c,
		Vault:         c,
	}
}

func (c *Cloud) fail(op string) error {
	if err, ok := c.FailStep[op]; ok {
		return err
	}
	return nil
}

func (c *Cloud) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s-%04d", prefix, c.seq)
}

// ---- Compute ----

func (c *Cloud) RegisterTask(_ context.Context, spec cloud.TaskSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("RegisterTask"); err != nil {
		return "", err
	}
	ref := c.nextID("taskdef/" + spec.Family)
	c.TaskDefs[ref] = spec
	return ref, nil
}

func (c *Cloud) RunTask(_ context.Context, taskDefRef string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("RunTask"); err != nil {
		return "", err
	}
	if _, ok := c.TaskDefs[taskDefRef]; !ok {
		return "", fmt.Errorf("task definition %s: %w", taskDefRef, cloud.ErrNotFound)
	}
	handle := c.nextID("task")
	c.Tasks[handle] = &memTask{defRef: taskDefRef, status: "PENDING"}
	return handle, nil
}

func (c *Cloud) StopTask(_ context.Context, handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("StopTask"); err != nil {
		return err
	}
	t, ok := c.Tasks[handle]
	if !ok {
		return cloud.ErrNotFound
	}
	t.status = "STOPPED"
	return nil
}

func (c *Cloud) DescribeTask(_ context.Context, handle string) (*cloud.TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DescribeTask"); err != nil {
		return nil, err
	}
	t, ok := c.Tasks[handle]
	if !ok {
		return nil, cloud.ErrNotFound
	}
	t.describe++
	if t.status == "PENDING" && t.describe >= c.ReadyAfter {
		t.status = "RUNNING"
		t.address = fmt.Sprintf("10.0.%d.%d", c.seq/250, c.seq%250+1)
	}
	return &cloud.TaskStatus{Handle: handle, LastStatus: t.status, Address: t.address}, nil
}

// RunningTasks 返回仍在运行的任务数
func (c *Cloud) RunningTasks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.Tasks {
		if t.status != "STOPPED" {
			n++
		}
	}
	return n
}

// ---- LoadBalancer ----

func (c *Cloud) CreateTargetGroup(_ context.Context, name string, _ int32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CreateTargetGroup"); err != nil {
		return "", err
	}
	arn := "targetgroup/" + name
	if _, ok := c.TargetGroups[arn]; !ok {
		c.TargetGroups[arn] = make(map[string]bool)
	}
	return arn, nil
}

func (c *Cloud) DeleteTargetGroup(_ context.Context, arn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteTargetGroup"); err != nil {
		return err
	}
	if _, ok := c.TargetGroups[arn]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.TargetGroups, arn)
	return nil
}

func (c *Cloud) RegisterTarget(_ context.Context, arn, address string, _ int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("RegisterTarget"); err != nil {
		return err
	}
	tg, ok := c.TargetGroups[arn]
	if !ok {
		return cloud.ErrNotFound
	}
	tg[address] = true
	return nil
}

func (c *Cloud) DeregisterTarget(_ context.Context, arn, address string, _ int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeregisterTarget"); err != nil {
		return err
	}
	tg, ok := c.TargetGroups[arn]
	if !ok {
		return cloud.ErrNotFound
	}
	delete(tg, address)
	return nil
}

func (c *Cloud) CreateRule(_ context.Context, arn, host string, priority int32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CreateRule"); err != nil {
		return "", err
	}
	for _, r := range c.Rules {
		if r.priority == priority {
			return "", fmt.Errorf("priority %d already in use", priority)
		}
	}
	ruleArn := c.nextID("rule")
	c.Rules[ruleArn] = memRule{targetGroup: arn, host: host, priority: priority}
	return ruleArn, nil
}

func (c *Cloud) DeleteRule(_ context.Context, ruleArn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteRule"); err != nil {
		return err
	}
	if _, ok := c.Rules[ruleArn]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.Rules, ruleArn)
	return nil
}

func (c *Cloud) NextRulePriority(context.Context) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	used := make([]int, 0, len(c.Rules))
	for _, r := range c.Rules {
		used = append(used, int(r.priority))
	}
	sort.Ints(used)
	next := int32(1)
	for _, p := range used {
		if int32(p) == next {
			next++
		}
	}
	return next, nil
}

// ---- DNS ----

func (c *Cloud) UpsertRecord(_ context.Context, host, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("UpsertRecord"); err != nil {
		return err
	}
	c.Records[host] = target
	return nil
}

func (c *Cloud) DeleteRecord(_ context.Context, host, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteRecord"); err != nil {
		return err
	}
	if _, ok := c.Records[host]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.Records, host)
	return nil
}

// ---- FileSystem ----

func (c *Cloud) CreateAccessPoint(_ context.Context, userID string, uid, gid int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CreateAccessPoint"); err != nil {
		return "", err
	}
	id := c.nextID("fsap")
	c.AccessPoints[id] = memAccessPoint{userID: userID, uid: uid, gid: gid}
	c.Files[userID] += 3
	c.Ownership[userID] = [2]int64{uid, gid}
	return id, nil
}

func (c *Cloud) DeleteAccessPoint(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteAccessPoint"); err != nil {
		return err
	}
	if _, ok := c.AccessPoints[id]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.AccessPoints, id)
	return nil
}

func (c *Cloud) CleanupUserFiles(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CleanupUserFiles"); err != nil {
		return err
	}
	delete(c.Files, userID)
	return nil
}

func (c *Cloud) ResetOwnership(_ context.Context, userID string, uid, gid int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("ResetOwnership"); err != nil {
		return err
	}
	c.Ownership[userID] = [2]int64{uid, gid}
	c.OwnershipLog = append(c.OwnershipLog, fmt.Sprintf("%s:%d:%d", userID, uid, gid))
	return nil
}

// ---- ObjectStorage ----

func (c *Cloud) CreateBucket(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CreateBucket"); err != nil {
		return err
	}
	if _, ok := c.Buckets[name]; !ok {
		c.Buckets[name] = []string{}
	}
	return nil
}

func (c *Cloud) DeleteBucket(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteBucket"); err != nil {
		return err
	}
	if _, ok := c.Buckets[name]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.Buckets, name)
	return nil
}

// PutObjectVersion 测试辅助：模拟上传产生的对象版本
func (c *Cloud) PutObjectVersion(bucket, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Buckets[bucket] = append(c.Buckets[bucket], key)
}

func (c *Cloud) PublicURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.local/%s", bucket, strings.TrimPrefix(key, "/"))
}

// ---- Identity ----

func (c *Cloud) CreateScopedUser(_ context.Context, name, bucket string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CreateScopedUser"); err != nil {
		return err
	}
	c.Users[name] = bucket
	return nil
}

func (c *Cloud) DeleteScopedUser(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteScopedUser"); err != nil {
		return err
	}
	if _, ok := c.Users[name]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.Users, name)
	return nil
}

func (c *Cloud) CreateAccessKey(_ context.Context, name string) (*cloud.AccessKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("CreateAccessKey"); err != nil {
		return nil, err
	}
	if _, ok := c.Users[name]; !ok {
		return nil, cloud.ErrNotFound
	}
	key := cloud.AccessKey{AccessKeyID: "AKIA" + strings.ToUpper(random.RandString(12)), SecretAccessKey: random.RandString(32)}
	c.Keys[name] = append(c.Keys[name], key)
	return &key, nil
}

func (c *Cloud) DeleteAccessKeys(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("DeleteAccessKeys"); err != nil {
		return err
	}
	delete(c.Keys, name)
	return nil
}

// ---- SecretVault ----

func (c *Cloud) Put(_ context.Context, name string, creds *cloud.Credentials) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("Put"); err != nil {
		return "", err
	}
	if _, pending := c.PendingDelete[name]; pending {
		return "", cloud.ErrPendingDeletion
	}
	cp := *creds
	c.Secrets[name] = &cp
	return "secret/" + name, nil
}

func (c *Cloud) Get(_ context.Context, name string) (*cloud.Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("Get"); err != nil {
		return nil, err
	}
	s, ok := c.Secrets[name]
	if !ok {
		if _, pending := c.PendingDelete[name]; pending {
			return nil, cloud.ErrPendingDeletion
		}
		return nil, cloud.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *Cloud) Delete(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("Delete"); err != nil {
		return err
	}
	if _, ok := c.Secrets[name]; !ok {
		return cloud.ErrNotFound
	}
	delete(c.Secrets, name)
	return nil
}

// SchedulePendingDeletion 测试辅助：模拟密钥处于恢复窗口内
func (c *Cloud) SchedulePendingDeletion(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.Secrets[name]; ok {
		c.PendingDelete[name] = s
		delete(c.Secrets, name)
		return
	}
	c.PendingDelete[name] = &cloud.Credentials{}
}

func (c *Cloud) Restore(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("Restore"); err != nil {
		return err
	}
	s, ok := c.PendingDelete[name]
	if !ok {
		return cloud.ErrNotFound
	}
	delete(c.PendingDelete, name)
	c.Secrets[name] = s
	return nil
}
