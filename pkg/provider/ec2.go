package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/cuemby/hcluster/pkg/types"
)

// ec2API is the subset of the EC2 client the gateway uses
type ec2API interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, opts ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, opts ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, opts ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, opts ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, opts ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, opts ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
}

// EC2Config configures the EC2 gateway
type EC2Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	OwnerID         string
}

// EC2Gateway implements Gateway on Amazon EC2 security groups and instances
type EC2Gateway struct {
	client  ec2API
	ownerID string
}

// NewEC2Gateway builds a gateway from static credentials, falling back to the
// SDK's default credential chain when none are given.
func NewEC2Gateway(ctx context.Context, cfg EC2Config) (*EC2Gateway, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider configuration: %w", err)
	}

	client := ec2.NewFromConfig(awsCfg, func(o *ec2.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return newEC2Gateway(client, cfg.OwnerID), nil
}

func newEC2Gateway(client ec2API, ownerID string) *EC2Gateway {
	return &EC2Gateway{client: client, ownerID: ownerID}
}

// LaunchNodes issues one RunInstances call with MinCount = MaxCount
func (g *EC2Gateway) LaunchNodes(ctx context.Context, req LaunchRequest) ([]*types.Node, error) {
	in := &ec2.RunInstancesInput{
		ImageId:        aws.String(req.ImageID),
		MinCount:       aws.Int32(int32(req.Count)),
		MaxCount:       aws.Int32(int32(req.Count)),
		InstanceType:   ec2types.InstanceType(req.InstanceType),
		SecurityGroups: []string{req.Group},
	}
	if req.KeyName != "" {
		in.KeyName = aws.String(req.KeyName)
	}
	if req.Zone != "" {
		in.Placement = &ec2types.Placement{AvailabilityZone: aws.String(req.Zone)}
	}
	if req.ClientToken != "" {
		in.ClientToken = aws.String(req.ClientToken)
	}
	if tags := launchTags(req); len(tags) > 0 {
		spec := ec2types.TagSpecification{ResourceType: ec2types.ResourceTypeInstance}
		for k, v := range tags {
			spec.Tags = append(spec.Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		in.TagSpecifications = []ec2types.TagSpecification{spec}
	}

	out, err := g.client.RunInstances(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}

	nodes := make([]*types.Node, 0, len(out.Instances))
	for i := range out.Instances {
		nodes = append(nodes, nodeFromInstance(&out.Instances[i], req.Group))
	}
	return nodes, nil
}

// DescribeNodes pages through DescribeInstances
func (g *EC2Gateway) DescribeNodes(ctx context.Context, filter Filter) ([]*types.Node, error) {
	in := &ec2.DescribeInstancesInput{InstanceIds: filter.InstanceIDs}
	if len(filter.Groups) > 0 {
		in.Filters = []ec2types.Filter{{Name: aws.String("instance.group-name"), Values: filter.Groups}}
	}

	var nodes []*types.Node
	paginator := ec2.NewDescribeInstancesPaginator(g.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, res := range page.Reservations {
			group := ""
			if len(res.Groups) > 0 {
				group = aws.ToString(res.Groups[0].GroupName)
			}
			for i := range res.Instances {
				nodes = append(nodes, nodeFromInstance(&res.Instances[i], group))
			}
		}
	}
	return nodes, nil
}

// TerminateNodes terminates the given instances
func (g *EC2Gateway) TerminateNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := g.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
	return mapError(err)
}

// DescribeImages lists images by id, owner and exact name
func (g *EC2Gateway) DescribeImages(ctx context.Context, filter ImageFilter) ([]*types.Image, error) {
	in := &ec2.DescribeImagesInput{ImageIds: filter.ImageIDs, Owners: filter.Owners}
	if filter.Name != "" {
		in.Filters = []ec2types.Filter{{Name: aws.String("name"), Values: []string{filter.Name}}}
	}

	out, err := g.client.DescribeImages(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}

	images := make([]*types.Image, 0, len(out.Images))
	for _, img := range out.Images {
		images = append(images, &types.Image{
			ID:      aws.ToString(img.ImageId),
			Name:    aws.ToString(img.Name),
			OwnerID: aws.ToString(img.OwnerId),
			State:   string(img.State),
		})
	}
	return images, nil
}

// ListIsolationGroups returns every security group name in the account
func (g *EC2Gateway) ListIsolationGroups(ctx context.Context) ([]string, error) {
	var names []string
	paginator := ec2.NewDescribeSecurityGroupsPaginator(g.client, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, sg := range page.SecurityGroups {
			names = append(names, aws.ToString(sg.GroupName))
		}
	}
	return names, nil
}

// CreateIsolationGroup creates a security group
func (g *EC2Gateway) CreateIsolationGroup(ctx context.Context, name, description string) error {
	_, err := g.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(description),
	})
	return mapError(err)
}

// AuthorizeIngress adds one ingress permission to group
func (g *EC2Gateway) AuthorizeIngress(ctx context.Context, group string, rule IngressRule) error {
	perm := ec2types.IpPermission{IpProtocol: aws.String(rule.Protocol)}
	if rule.SourceGroup != "" {
		pair := ec2types.UserIdGroupPair{GroupName: aws.String(rule.SourceGroup)}
		if g.ownerID != "" {
			pair.UserId = aws.String(g.ownerID)
		}
		perm.UserIdGroupPairs = []ec2types.UserIdGroupPair{pair}
	} else {
		perm.FromPort = aws.Int32(int32(rule.FromPort))
		perm.ToPort = aws.Int32(int32(rule.ToPort))
		perm.IpRanges = []ec2types.IpRange{{CidrIp: aws.String(rule.CIDR)}}
	}

	_, err := g.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupName:     aws.String(group),
		IpPermissions: []ec2types.IpPermission{perm},
	})
	return mapError(err)
}

func nodeFromInstance(inst *ec2types.Instance, group string) *types.Node {
	n := &types.Node{
		ID:             aws.ToString(inst.InstanceId),
		ImageID:        aws.ToString(inst.ImageId),
		InstanceType:   string(inst.InstanceType),
		PublicAddress:  aws.ToString(inst.PublicDnsName),
		PrivateAddress: aws.ToString(inst.PrivateDnsName),
		State:          types.ComputeStateUnknown,
		Group:          group,
		Tags:           make(map[string]string, len(inst.Tags)),
	}
	if n.PublicAddress == "" {
		n.PublicAddress = aws.ToString(inst.PublicIpAddress)
	}
	if n.PrivateAddress == "" {
		n.PrivateAddress = aws.ToString(inst.PrivateIpAddress)
	}
	if inst.State != nil {
		n.State = types.ParseComputeState(string(inst.State.Name))
	}
	if inst.Placement != nil {
		n.Zone = aws.ToString(inst.Placement.AvailabilityZone)
	}
	if inst.LaunchTime != nil {
		n.LaunchTime = *inst.LaunchTime
	}
	if n.Group == "" && len(inst.SecurityGroups) > 0 {
		n.Group = aws.ToString(inst.SecurityGroups[0].GroupName)
	}
	for _, tag := range inst.Tags {
		n.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	if role, err := types.ParseRole(n.Tags[types.TagRole]); err == nil {
		n.Role = role
	}
	return n
}

// mapError folds provider error codes onto the package sentinels so callers
// can classify with errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case strings.HasSuffix(code, ".NotFound"):
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case code == "InvalidPermission.Duplicate":
			return fmt.Errorf("%w: %v", ErrDuplicatePermission, err)
		case code == "InvalidGroup.Duplicate":
			return fmt.Errorf("%w: %v", ErrDuplicateGroup, err)
		case code == "RequestLimitExceeded" || code == "Throttling" || code == "ThrottlingException":
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		case code == "InternalError" || code == "Unavailable" || code == "ServiceUnavailable":
			return fmt.Errorf("%w: %v", ErrInternal, err)
		case strings.HasPrefix(code, "Invalid") || strings.HasSuffix(code, ".Malformed"):
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return err
}
