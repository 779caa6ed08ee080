package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.uber.org/zap"
)

// Mover переносит пользователя из одной группы провайдера в другую
type Mover interface {
	Move(ctx context.Context, user, from, to string) error
}

// cognitoAPI подмножество клиента Cognito, которое нам нужно
type cognitoAPI interface {
	AdminAddUserToGroup(ctx context.Context, params *cip.AdminAddUserToGroupInput, optFns ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error)
	AdminRemoveUserFromGroup(ctx context.Context, params *cip.AdminRemoveUserFromGroupInput, optFns ...func(*cip.Options)) (*cip.AdminRemoveUserFromGroupOutput, error)
	ListGroups(ctx context.Context, params *cip.ListGroupsInput, optFns ...func(*cip.Options)) (*cip.ListGroupsOutput, error)
	CreateGroup(ctx context.Context, params *cip.CreateGroupInput, optFns ...func(*cip.Options)) (*cip.CreateGroupOutput, error)
}

type Cognito struct {
	client cognitoAPI
	poolID string
}

func NewCognito(ctx context.Context, poolID, region string) (*Cognito, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Cognito{client: cip.NewFromConfig(cfg), poolID: poolID}, nil
}

// Move сначала убирает из from (отсутствие в группе не ошибка), затем добавляет в to
func (c *Cognito) Move(ctx context.Context, user, from, to string) error {
	if from != "" && from != to {
		_, err := c.client.AdminRemoveUserFromGroup(ctx, &cip.AdminRemoveUserFromGroupInput{
			UserPoolId: aws.String(c.poolID),
			Username:   aws.String(user),
			GroupName:  aws.String(from),
		})
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to remove %s from group %s: %w", user, from, err)
			}
		}
	}

	_, err := c.client.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
		UserPoolId: aws.String(c.poolID),
		Username:   aws.String(user),
		GroupName:  aws.String(to),
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to group %s: %w", user, to, err)
	}
	return nil
}

// EnsureGroups создаёт отсутствующие в пуле группы тарифов
func (c *Cognito) EnsureGroups(ctx context.Context, names ...string) error {
	existing := make(map[string]bool)
	paginator := cip.NewListGroupsPaginator(c.client, &cip.ListGroupsInput{UserPoolId: aws.String(c.poolID)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		for _, g := range page.Groups {
			existing[aws.ToString(g.GroupName)] = true
		}
	}

	for _, name := range names {
		if name == "" || existing[name] {
			continue
		}
		_, err := c.client.CreateGroup(ctx, &cip.CreateGroupInput{
			UserPoolId:  aws.String(c.poolID),
			GroupName:   aws.String(name),
			Description: aws.String("Subscription tier " + name),
		})
		if err != nil {
			// Группу мог создать соседний экземпляр
			var exists *types.GroupExistsException
			if !errors.As(err, &exists) {
				return fmt.Errorf("failed to create group %s: %w", name, err)
			}
		}
		existing[name] = true
	}
	return nil
}

// Noop только логирует переносы. Используется, когда пул пользователей не настроен.
type Noop struct {
	logger *zap.Logger
}

func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Move(ctx context.Context, user, from, to string) error {
	n.logger.Info("Group move skipped: no user pool configured",
		zap.String("user", user),
		zap.String("from", from),
		zap.String("to", to),
	)
	return nil
}
