package dynamodb

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"

	"gamgee/internal/domain"
)

// API is the subset of the DynamoDB client used by the repositories.
type API interface {
	GetItem(ctx context.Context, params *awsv2dynamodb.GetItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *awsv2dynamodb.PutItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *awsv2dynamodb.QueryInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.QueryOutput, error)
}

type Client struct {
	db        API
	tableName string
}

func NewClient(ctx context.Context, region, tableName string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	client := awsv2dynamodb.NewFromConfig(cfg)
	return &Client{db: client, tableName: tableName}, nil
}

// NewClientWithAPI builds a Client around an existing DynamoDB API, such as
// a local endpoint or a test double.
func NewClientWithAPI(api API, tableName string) *Client {
	return &Client{db: api, tableName: tableName}
}

func appPK(appID string) string     { return "APP#" + appID }
func userPK(userID string) string   { return "USER#" + userID }
func userAppSK(appID string) string { return "APP#" + appID }

const rolePrefix = "ROLE#"

// capture runs fn inside an X-Ray subsegment when the context is traced.
func capture(ctx context.Context, name string, fn func(context.Context) error) error {
	header, _ := ctx.Value(xray.LambdaTraceHeaderKey).(string)
	if xray.GetSegment(ctx) == nil && header == "" {
		return fn(ctx)
	}
	return xray.Capture(ctx, name, fn)
}

type RoleRepository struct{ client *Client }

type UserRoleRepository struct{ client *Client }

func NewRoleRepository(client *Client) *RoleRepository {
	return &RoleRepository{client: client}
}

func NewUserRoleRepository(client *Client) *UserRoleRepository {
	return &UserRoleRepository{client: client}
}

func (r *RoleRepository) ListByAppID(ctx context.Context, appID string) ([]domain.Role, error) {
	var out *awsv2dynamodb.QueryOutput
	err := capture(ctx, "DynamoDB.QueryRoles", func(ctx context.Context) error {
		var e error
		out, e = r.client.db.Query(ctx, &awsv2dynamodb.QueryInput{
			TableName:              aws.String(r.client.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
			ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
				":pk": &awsv2types.AttributeValueMemberS{Value: appPK(appID)},
				":sk": &awsv2types.AttributeValueMemberS{Value: rolePrefix},
			},
		})
		return e
	})
	if err != nil {
		return nil, err
	}
	roles := make([]domain.Role, 0, len(out.Items))
	for _, item := range out.Items {
		raw := struct {
			ID          string   `dynamodbav:"ID"`
			Name        string   `dynamodbav:"Name"`
			Permissions []string `dynamodbav:"Permissions"`
			CreatedAt   string   `dynamodbav:"CreatedAt"`
			UpdatedAt   string   `dynamodbav:"UpdatedAt"`
		}{}
		if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
			return nil, err
		}
		createdAt, _ := time.Parse(time.RFC3339, raw.CreatedAt)
		updatedAt, _ := time.Parse(time.RFC3339, raw.UpdatedAt)
		roles = append(roles, domain.Role{AppID: appID, ID: raw.ID, Name: raw.Name, Permissions: raw.Permissions, CreatedAt: createdAt, UpdatedAt: updatedAt})
	}
	return roles, nil
}

func (r *UserRoleRepository) AssignRole(ctx context.Context, appID, userID, roleID string) error {
	current, err := r.GetByUserAndApp(ctx, appID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if slices.Contains(current.Roles, roleID) {
		return nil
	}
	roles := append(current.Roles, roleID)
	rolesAV, err := attributevalue.Marshal(roles)
	if err != nil {
		return err
	}
	return capture(ctx, "DynamoDB.PutUserRole", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName: aws.String(r.client.tableName),
			Item: map[string]awsv2types.AttributeValue{
				"PK":         &awsv2types.AttributeValueMemberS{Value: userPK(userID)},
				"SK":         &awsv2types.AttributeValueMemberS{Value: userAppSK(appID)},
				"EntityType": &awsv2types.AttributeValueMemberS{Value: "USER_APP_ROLES"},
				"Roles":      rolesAV,
				"UpdatedAt":  &awsv2types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
		})
		return err
	})
}

func (r *UserRoleRepository) GetByUserAndApp(ctx context.Context, appID, userID string) (domain.UserAppRoles, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := capture(ctx, "DynamoDB.GetUserRoles", func(ctx context.Context) error {
		var e error
		out, e = r.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: userPK(userID)},
				"SK": &awsv2types.AttributeValueMemberS{Value: userAppSK(appID)},
			},
		})
		return e
	})
	if err != nil {
		return domain.UserAppRoles{}, err
	}
	if out.Item == nil {
		return domain.UserAppRoles{}, domain.ErrNotFound
	}
	raw := struct {
		Roles     []string `dynamodbav:"Roles"`
		UpdatedAt string   `dynamodbav:"UpdatedAt"`
	}{}
	if err := attributevalue.UnmarshalMap(out.Item, &raw); err != nil {
		return domain.UserAppRoles{}, err
	}
	updatedAt, _ := time.Parse(time.RFC3339, raw.UpdatedAt)
	return domain.UserAppRoles{UserID: userID, AppID: appID, Roles: raw.Roles, UpdatedAt: updatedAt}, nil
}
